//go:build !windows

package fetchlib

import (
	"errors"
	"syscall"
)

// isCrossDeviceError reports whether err wraps EXDEV, returned when a rename
// crosses filesystems or mount points.
func isCrossDeviceError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EXDEV
	}
	return false
}
