//go:build !unix

package fetchlib

import "os"

// sparseFile falls back to positional writes where mmap is unavailable.
// os.File.WriteAt is safe for concurrent use on disjoint ranges.
type sparseFile struct {
	f *os.File
}

func openPartFile(path string, size int64) (partFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &FileError{Op: "create", Path: path, Cause: err}
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, &FileError{Op: "truncate", Path: path, Cause: err}
	}
	return &sparseFile{f: f}, nil
}

func (s *sparseFile) WriteAt(p []byte, off int64) (int, error) {
	n, err := s.f.WriteAt(p, off)
	if err != nil {
		return n, &FileError{Op: "write", Path: s.f.Name(), Cause: err}
	}
	return n, nil
}

func (s *sparseFile) Close() error {
	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return &FileError{Op: "sync", Path: f.Name(), Cause: err}
	}
	if err := f.Close(); err != nil {
		return &FileError{Op: "close", Path: f.Name(), Cause: err}
	}
	return nil
}
