package logger

import (
	"log"
	"os"
	"path/filepath"
	"sync"
)

// FileLogger appends log lines to a file.
type FileLogger struct {
	*StandardLogger
	f    *os.File
	once sync.Once
}

// NewFileLogger opens (or creates) path for appending, creating missing
// parent directories.
func NewFileLogger(path string, level Level) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	std := NewStandardLogger(log.New(f, "", log.LstdFlags|log.Lmicroseconds))
	std.SetLevel(level)
	return &FileLogger{StandardLogger: std, f: f}, nil
}

// Close closes the file. Safe to call multiple times.
func (l *FileLogger) Close() error {
	var err error
	l.once.Do(func() { err = l.f.Close() })
	return err
}

var _ Logger = (*FileLogger)(nil)
