//go:build unix

package fetchlib

import (
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// mappedFile is a pre-sized file mapped MAP_SHARED for random-offset writes.
// Concurrent WriteAt calls are safe as long as their ranges do not overlap.
type mappedFile struct {
	f    *os.File
	data []byte
}

// openPartFile creates path truncated to size bytes and maps it.
func openPartFile(path string, size int64) (partFile, error) {
	if size <= 0 || size > math.MaxInt {
		return nil, &FileError{Op: "mmap", Path: path, Cause: fmt.Errorf("unsupported size %d", size)}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &FileError{Op: "create", Path: path, Cause: err}
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, &FileError{Op: "truncate", Path: path, Cause: err}
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, &FileError{Op: "mmap", Path: path, Cause: err}
	}
	return &mappedFile{f: f, data: data}, nil
}

func (m *mappedFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, &FileError{Op: "write", Path: m.f.Name(), Cause: fmt.Errorf("offset %d+%d out of bounds", off, len(p))}
	}
	return copy(m.data[off:], p), nil
}

// Close flushes the mapping, unmaps it and closes the file. It is safe to
// call more than once.
func (m *mappedFile) Close() error {
	if m.data == nil {
		return nil
	}
	var firstErr error
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		firstErr = &FileError{Op: "msync", Path: m.f.Name(), Cause: err}
	}
	if err := unix.Munmap(m.data); err != nil && firstErr == nil {
		firstErr = &FileError{Op: "munmap", Path: m.f.Name(), Cause: err}
	}
	m.data = nil
	if err := m.f.Close(); err != nil && firstErr == nil {
		firstErr = &FileError{Op: "close", Path: m.f.Name(), Cause: err}
	}
	return firstErr
}
