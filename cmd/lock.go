package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// lockDir returns the directory of the single-instance lock file.
var lockDir = func() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "rtfetch")
	}
	return os.TempDir()
}

// LockedError is returned when another process holds the instance lock.
type LockedError struct {
	Path string
	// PID of the holder, 0 if unknown.
	PID int
}

func (e *LockedError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("another rtfetch instance is running (pid %d, lock %s)", e.PID, e.Path)
	}
	return fmt.Sprintf("another rtfetch instance is running (lock %s)", e.Path)
}

// instanceLock is an advisory lock held on an open file for the lifetime of
// a fetch run. The file keeps the PID of the holder.
type instanceLock struct {
	f    *os.File
	path string
}

// acquireInstanceLock takes the lock below lockDir without blocking.
func acquireInstanceLock() (*instanceLock, error) {
	dir := lockDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, DEF_LOCK_NAME)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	locked, err := tryLock(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		pid := readLockPID(f)
		f.Close()
		return nil, &LockedError{Path: path, PID: pid}
	}
	if err := writeLockPID(f); err != nil {
		_ = unlock(f)
		f.Close()
		return nil, err
	}
	return &instanceLock{f: f, path: path}, nil
}

// Release drops the lock. The file itself is left in place; removing it
// would let a waiting process lock an unlinked inode.
func (l *instanceLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = l.f.Truncate(0)
	err := unlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

func writeLockPID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	return err
}

func readLockPID(f *os.File) int {
	data, err := io.ReadAll(io.NewSectionReader(f, 0, 32))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
