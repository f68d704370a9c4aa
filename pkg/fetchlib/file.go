package fetchlib

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// commitPart renames a finished part file onto dst. The rename is atomic on
// one filesystem; a cross-device rename is reported instead of being
// emulated with copy and delete.
func commitPart(part, dst string) error {
	err := os.Rename(part, dst)
	if err == nil {
		return nil
	}
	if isCrossDeviceError(err) {
		err = fmt.Errorf("part file and destination are on different filesystems: %w", err)
	}
	return &FileError{Op: "rename", Path: dst, Cause: err}
}

// removePart deletes a part file, ignoring a missing one.
func removePart(part string) error {
	if err := os.Remove(part); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &FileError{Op: "remove", Path: part, Cause: err}
	}
	return nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &FileError{Op: "mkdir", Path: dir, Cause: err}
	}
	return nil
}

// existingSize returns the size of the regular file at path, or -1.
func existingSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return -1
	}
	return fi.Size()
}
