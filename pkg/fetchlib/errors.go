package fetchlib

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned by Pool.Acquire when every connection
	// slot is in use and no idle connection is available. It is never
	// retried inside the pool.
	ErrCapacityExceeded = errors.New("connection pool capacity exceeded")
	// ErrPoolClosed is returned by Pool.Acquire after Pool.Close.
	ErrPoolClosed = errors.New("connection pool is closed")

	ErrInvalidSegmentCount = errors.New("segment count must be between 1 and 32")
	ErrInvalidTotalSize    = errors.New("total size must be positive")
	ErrEmptyCandidate      = errors.New("remote candidate path is empty")

	errNotInListing = errors.New("not in directory listing")
)

// ProtocolError is a structured error produced by a transport operation.
// Use errors.As to extract it.
type ProtocolError struct {
	// Protocol identifies the transport (e.g., "ftps", "sftp").
	Protocol string
	// Op is the operation that failed (e.g., "connect", "retr").
	Op string
	// Cause is the underlying error.
	Cause error
	// transient indicates whether the error may be retried.
	transient bool
}

// Error implements the error interface.
// Format: "protocol op: cause"
func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s", e.Protocol, e.Op, e.Cause.Error())
	}
	return fmt.Sprintf("%s %s", e.Protocol, e.Op)
}

// Unwrap returns the underlying cause, enabling errors.Is/As chaining.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// IsTransient returns true if this error is transient and may be retried.
func (e *ProtocolError) IsTransient() bool {
	return e.transient
}

// NewTransientError creates a ProtocolError that may be retried.
func NewTransientError(protocol, op string, cause error) *ProtocolError {
	return &ProtocolError{Protocol: protocol, Op: op, Cause: cause, transient: true}
}

// NewPermanentError creates a ProtocolError that should not be retried.
func NewPermanentError(protocol, op string, cause error) *ProtocolError {
	return &ProtocolError{Protocol: protocol, Op: op, Cause: cause}
}

// ConnectionError reports a handshake, authentication or liveness failure.
// The connection involved is always discarded.
type ConnectionError struct {
	Op       string
	Attempts int
	Cause    error
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("connection %s failed after %d attempts: %v", e.Op, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("connection %s failed: %v", e.Op, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// PathNotFoundError is returned when no candidate tail resolves to an
// existing remote file. Cause holds the last listing or probe error.
type PathNotFoundError struct {
	Candidate string
	Cause     error
}

func (e *PathNotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("no matching remote path for %s: %v", e.Candidate, e.Cause)
	}
	return fmt.Sprintf("no matching remote path for %s", e.Candidate)
}

func (e *PathNotFoundError) Unwrap() error {
	return e.Cause
}

// ShortReadError is returned when a data stream ends before the byte range
// assigned to it was fully consumed.
type ShortReadError struct {
	Start     int64
	End       int64
	Remaining int64
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read in range %d-%d, remaining=%d", e.Start, e.End, e.Remaining)
}

// FileError wraps a local filesystem failure (create, truncate, map, rename).
type FileError struct {
	Op    string
	Path  string
	Cause error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *FileError) Unwrap() error {
	return e.Cause
}

// SegmentError aggregates the failures of a segmented transfer. It carries
// the first failed segment's cause and how many segments failed in total.
type SegmentError struct {
	Index  int
	Range  SegmentRange
	Failed int
	Total  int
	Cause  error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segmented transfer failed (%d/%d segments): segment %d [%d-%d): %v",
		e.Failed, e.Total, e.Index, e.Range.Start, e.Range.End, e.Cause)
}

func (e *SegmentError) Unwrap() error {
	return e.Cause
}
