package fetchlib

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/textproto"
	"time"

	"github.com/pkg/sftp"
)

// EntryKind tells files and folders apart in a directory listing.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryFolder
	EntryOther
)

// Entry is one item of a directory listing. Name may contain slashes when
// the server lists nested paths. Size is 0 when the listing does not report it.
type Entry struct {
	Name string
	Kind EntryKind
	Size int64
}

// Conn is one authenticated remote file-transfer session. Implementations
// are not safe for concurrent use; the pool hands each Conn to a single
// caller at a time.
type Conn interface {
	// NoOp performs a cheap round-trip used as a liveness probe.
	NoOp() error
	// ChangeDir changes the working directory of the session.
	ChangeDir(dir string) error
	// FileSize returns the size of name relative to the working directory.
	FileSize(name string) (int64, error)
	// List returns a listing of dir that includes sizes when the server
	// supports it.
	List(dir string) ([]Entry, error)
	// NameList returns the bare names in dir.
	NameList(dir string) ([]string, error)
	// RetrFrom opens a data stream for name starting at offset.
	// Closing the returned reader finishes the transfer on the session.
	RetrFrom(name string, offset int64) (io.ReadCloser, error)
	// Quit ends the session and closes the underlying connection.
	Quit() error
}

// Dialer establishes and authenticates a new Conn.
type Dialer interface {
	// Protocol returns a short name used in errors and logs.
	Protocol() string
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Protocol() string { return "custom" }

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// ServerOpts holds the settings shared by every transport.
type ServerOpts struct {
	Host     string
	Port     int
	User     string
	Password string
	// TLSVerify enables certificate and hostname verification (FTPS).
	TLSVerify bool
	// DisableTLS sends everything in clear text (FTPS dialer only).
	DisableTLS bool
	// DisableEPSV forces PASV for data connections (FTPS dialer only).
	DisableEPSV bool
	// Timeout applies to dialing and to every network operation.
	Timeout time.Duration
	// SSHKeyPath is used by the SFTP dialer when no password is set.
	SSHKeyPath string
	// KnownHostsPath is the TOFU known_hosts file of the SFTP dialer.
	KnownHostsPath string
}

// isServerReply reports whether err is a protocol-level reply from the
// server. After such an error the session is still in sync and reusable.
func isServerReply(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return true
	}
	var stErr *sftp.StatusError
	if errors.As(err, &stErr) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
