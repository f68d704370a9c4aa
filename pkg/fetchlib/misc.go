package fetchlib

import (
	"path"
	"strings"
	"time"
)

// Size unit constants for byte conversions.
const (
	// B represents one byte.
	B int64 = 1
	// KB represents one kilobyte (1024 bytes).
	KB = 1024 * B
	// MB represents one megabyte (1024 kilobytes).
	MB = 1024 * KB
	// GB represents one gigabyte (1024 megabytes).
	GB = 1024 * MB
)

const (
	DEF_BLOCK_SIZE       = 256 * KB
	DEF_SEGMENTS         = 4
	DEF_MIN_SEGMENT_SIZE = 8 * MB
	DEF_TIMEOUT          = 30 * time.Second

	DEF_MAX_CONN_AGE   = 300 * time.Second
	DEF_MAX_IDLE_TIME  = 60 * time.Second
	DEF_SWEEP_INTERVAL = 30 * time.Second

	// DEF_POOL_CEILING bounds the pool size no matter how many files and
	// segments are configured.
	DEF_POOL_CEILING = 32

	MAX_SEGMENTS = 32
)

// PartSuffix is appended to the destination path while a transfer is in progress.
const PartSuffix = ".part"

// PosixNorm converts backslashes to forward slashes and cleans the result.
// An empty input yields ".".
func PosixNorm(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// JoinPosix joins remote path elements and normalizes the result.
func JoinPosix(elem ...string) string {
	return PosixNorm(path.Join(elem...))
}

// PoolCapacity returns the number of connections a pool needs to serve
// fileConcurrency files with segments connections each, plus two spare
// connections for resolution. The result never exceeds ceiling.
func PoolCapacity(fileConcurrency, segments, ceiling int) int {
	if fileConcurrency < 1 {
		fileConcurrency = 1
	}
	if segments < 1 {
		segments = 1
	}
	if ceiling < 1 {
		ceiling = DEF_POOL_CEILING
	}
	return min(fileConcurrency*segments+2, ceiling)
}
