package fetchlib

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/textproto"
	"strconv"

	"github.com/jlaffaye/ftp"
)

// Compile-time interface checks.
var (
	_ Dialer = (*FTPDialer)(nil)
	_ Conn   = (*ftpConn)(nil)
)

// FTPDialer opens FTP sessions upgraded with explicit TLS (AUTH TLS, PROT P).
// Data connections are passive; transfers run in binary mode.
type FTPDialer struct {
	opts ServerOpts
}

// NewFTPDialer returns a dialer for opts. A zero port means 21 and a zero
// timeout means DEF_TIMEOUT.
func NewFTPDialer(opts ServerOpts) *FTPDialer {
	if opts.Port == 0 {
		opts.Port = 21
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DEF_TIMEOUT
	}
	return &FTPDialer{opts: opts}
}

// Protocol returns "ftps", or "ftp" when TLS is disabled.
func (d *FTPDialer) Protocol() string {
	if d.opts.DisableTLS {
		return "ftp"
	}
	return "ftps"
}

// Dial connects, upgrades the control channel, logs in and switches to
// binary mode.
func (d *FTPDialer) Dial(ctx context.Context) (Conn, error) {
	proto := d.Protocol()
	dialOpts := []ftp.DialOption{
		ftp.DialWithTimeout(d.opts.Timeout),
		ftp.DialWithContext(ctx),
		ftp.DialWithDisabledEPSV(d.opts.DisableEPSV),
	}
	if !d.opts.DisableTLS {
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         d.opts.Host,
			InsecureSkipVerify: !d.opts.TLSVerify, //nolint:gosec // opt-out is a user setting
			MinVersion:         tls.VersionTLS12,
		}))
	}

	addr := net.JoinHostPort(d.opts.Host, strconv.Itoa(d.opts.Port))
	c, err := ftp.Dial(addr, dialOpts...)
	if err != nil {
		return nil, classifyFTPError(proto, "connect", err)
	}
	if err := c.Login(d.opts.User, d.opts.Password); err != nil {
		_ = c.Quit()
		return nil, classifyFTPError(proto, "login", err)
	}
	// Some servers reject TYPE but already default to binary, so a failure
	// here is not fatal. Resumed transfers depend on binary mode.
	_ = c.Type(ftp.TransferTypeBinary)

	return &ftpConn{c: c, proto: proto}, nil
}

// ftpConn adapts *ftp.ServerConn to Conn.
type ftpConn struct {
	c     *ftp.ServerConn
	proto string
}

func (f *ftpConn) NoOp() error {
	if err := f.c.NoOp(); err != nil {
		return classifyFTPError(f.proto, "noop", err)
	}
	return nil
}

func (f *ftpConn) ChangeDir(dir string) error {
	if err := f.c.ChangeDir(dir); err != nil {
		return classifyFTPError(f.proto, "cwd", err)
	}
	return nil
}

func (f *ftpConn) FileSize(name string) (int64, error) {
	size, err := f.c.FileSize(name)
	if err != nil {
		return 0, classifyFTPError(f.proto, "size", err)
	}
	return size, nil
}

func (f *ftpConn) List(dir string) ([]Entry, error) {
	raw, err := f.c.List(dir)
	if err != nil {
		return nil, classifyFTPError(f.proto, "list", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		if e == nil || e.Name == "." || e.Name == ".." {
			continue
		}
		kind := EntryOther
		switch e.Type {
		case ftp.EntryTypeFile:
			kind = EntryFile
		case ftp.EntryTypeFolder:
			kind = EntryFolder
		}
		entries = append(entries, Entry{Name: e.Name, Kind: kind, Size: int64(e.Size)})
	}
	return entries, nil
}

func (f *ftpConn) NameList(dir string) ([]string, error) {
	names, err := f.c.NameList(dir)
	if err != nil {
		return nil, classifyFTPError(f.proto, "nlst", err)
	}
	return names, nil
}

// RetrFrom issues REST <offset> before RETR when offset is positive.
func (f *ftpConn) RetrFrom(name string, offset int64) (io.ReadCloser, error) {
	var (
		resp *ftp.Response
		err  error
	)
	if offset > 0 {
		resp, err = f.c.RetrFrom(name, uint64(offset))
	} else {
		resp, err = f.c.Retr(name)
	}
	if err != nil {
		return nil, classifyFTPError(f.proto, "retr", err)
	}
	return resp, nil
}

func (f *ftpConn) Quit() error {
	return f.c.Quit()
}

// classifyFTPError classifies FTP errors into transient or permanent.
// RFC 959: 4xx codes are transient (retry), 5xx are permanent (no retry).
// Network errors are treated as transient.
func classifyFTPError(proto, op string, err error) *ProtocolError {
	if err == nil {
		return nil
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			return NewTransientError(proto, op, err)
		}
		return NewPermanentError(proto, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError(proto, op, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return NewTransientError(proto, op, err)
	}

	return NewPermanentError(proto, op, err)
}
