package keyring

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const secretFileMode = 0600

// FileStore keeps each secret in its own 0600 file below a directory. It is
// used when the system keyring is unavailable.
type FileStore struct {
	dir string
}

var (
	fileReadFile    = os.ReadFile
	fileRemove      = os.Remove
	fileRename      = os.Rename
	fileMkdirAll    = os.MkdirAll
	fileTempFile    = os.CreateTemp
	fileTempFileDir = ""
)

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on the first Set.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) path(item string) (string, error) {
	if item == "" || item == "." || item == ".." || strings.ContainsAny(item, `/\`) {
		return "", fmt.Errorf("invalid secret item name %q", item)
	}
	return filepath.Join(f.dir, item+".secret"), nil
}

// Set writes the secret atomically through a temporary file and rename.
func (f *FileStore) Set(item, secret string) error {
	p, err := f.path(item)
	if err != nil {
		return err
	}
	if err := fileMkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("create secret dir: %w", err)
	}

	dir := f.dir
	if fileTempFileDir != "" {
		dir = fileTempFileDir
	}
	tmpFile, err := fileTempFile(dir, ".secret.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.WriteString(secret); err != nil {
		tmpFile.Close()
		fileRemove(tmpPath)
		return fmt.Errorf("write secret: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		fileRemove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, secretFileMode); err != nil {
		fileRemove(tmpPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := fileRename(tmpPath, p); err != nil {
		fileRemove(tmpPath)
		return fmt.Errorf("rename secret file: %w", err)
	}
	return nil
}

// Get returns the stored secret with trailing newlines removed, so files
// written by hand work too.
func (f *FileStore) Get(item string) (string, error) {
	p, err := f.path(item)
	if err != nil {
		return "", err
	}
	data, err := fileReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("secret file %s: %w", p, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (f *FileStore) Delete(item string) error {
	p, err := f.path(item)
	if err != nil {
		return err
	}
	if err := fileRemove(p); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("secret file %s: %w", p, ErrNotFound)
	} else if err != nil {
		return err
	}
	return nil
}

// Fallback tries primary first and uses secondary when primary fails for a
// reason other than a missing secret.
type Fallback struct {
	Primary   Store
	Secondary Store
}

func (fb *Fallback) Set(item, secret string) error {
	if err := fb.Primary.Set(item, secret); err != nil {
		return fb.Secondary.Set(item, secret)
	}
	return nil
}

func (fb *Fallback) Get(item string) (string, error) {
	secret, err := fb.Primary.Get(item)
	if err == nil {
		return secret, nil
	}
	secret, ferr := fb.Secondary.Get(item)
	if ferr == nil {
		return secret, nil
	}
	if errors.Is(err, ErrNotFound) {
		return "", ferr
	}
	return "", err
}

func (fb *Fallback) Delete(item string) error {
	perr := fb.Primary.Delete(item)
	serr := fb.Secondary.Delete(item)
	if perr == nil || serr == nil {
		return nil
	}
	if errors.Is(perr, ErrNotFound) {
		return serr
	}
	return perr
}
