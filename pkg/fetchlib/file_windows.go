//go:build windows

package fetchlib

import (
	"errors"
	"syscall"
)

// errNotSameDevice is ERROR_NOT_SAME_DEVICE (0x11), returned when a file is
// moved between drives.
const errNotSameDevice syscall.Errno = 0x11

func isCrossDeviceError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == errNotSameDevice
	}
	return false
}
