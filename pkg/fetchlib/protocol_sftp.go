package fetchlib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

var (
	_ Dialer = (*SFTPDialer)(nil)
	_ Conn   = (*sftpConn)(nil)
)

// SFTPDialer opens SFTP sessions over SSH. Host keys are verified with a
// trust-on-first-use known_hosts file.
type SFTPDialer struct {
	opts ServerOpts
}

// NewSFTPDialer returns a dialer for opts. A zero port means 22.
func NewSFTPDialer(opts ServerOpts) *SFTPDialer {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DEF_TIMEOUT
	}
	if opts.KnownHostsPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			opts.KnownHostsPath = filepath.Join(home, ".config", "rtfetch", "known_hosts")
		}
	}
	return &SFTPDialer{opts: opts}
}

func (d *SFTPDialer) Protocol() string { return "sftp" }

// Dial opens the SSH connection and starts the SFTP subsystem.
func (d *SFTPDialer) Dial(ctx context.Context) (Conn, error) {
	authMethods, err := buildAuthMethods(d.opts.Password, d.opts.SSHKeyPath)
	if err != nil {
		return nil, NewPermanentError("sftp", "auth", err)
	}
	config := &ssh.ClientConfig{
		User:            d.opts.User,
		Auth:            authMethods,
		HostKeyCallback: newTOFUHostKeyCallback(d.opts.KnownHostsPath),
		Timeout:         d.opts.Timeout,
	}

	addr := net.JoinHostPort(d.opts.Host, strconv.Itoa(d.opts.Port))
	nd := net.Dialer{Timeout: d.opts.Timeout}
	raw, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifySFTPError("connect", err)
	}
	c, chans, reqs, err := ssh.NewClientConn(raw, addr, config)
	if err != nil {
		raw.Close()
		return nil, classifySFTPError("handshake", err)
	}
	sshConn := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return nil, classifySFTPError("subsystem", err)
	}

	cwd, err := client.Getwd()
	if err != nil || cwd == "" {
		cwd = "/"
	}
	return &sftpConn{ssh: sshConn, c: client, cwd: cwd}, nil
}

// sftpConn emulates an FTP-style session on top of SFTP. SFTP has no server
// side working directory, so cwd is tracked locally.
type sftpConn struct {
	ssh *ssh.Client
	c   *sftp.Client
	cwd string
}

func (s *sftpConn) abs(p string) string {
	if p == "" {
		return s.cwd
	}
	if strings.HasPrefix(p, "/") {
		return PosixNorm(p)
	}
	return JoinPosix(s.cwd, p)
}

func (s *sftpConn) NoOp() error {
	if _, err := s.c.Getwd(); err != nil {
		return classifySFTPError("noop", err)
	}
	return nil
}

func (s *sftpConn) ChangeDir(dir string) error {
	target := s.abs(dir)
	fi, err := s.c.Stat(target)
	if err != nil {
		return classifySFTPError("cwd", err)
	}
	if !fi.IsDir() {
		return NewPermanentError("sftp", "cwd", fmt.Errorf("%s is not a directory: %w", target, fs.ErrNotExist))
	}
	s.cwd = target
	return nil
}

func (s *sftpConn) FileSize(name string) (int64, error) {
	fi, err := s.c.Stat(s.abs(name))
	if err != nil {
		return 0, classifySFTPError("size", err)
	}
	if fi.IsDir() {
		return 0, NewPermanentError("sftp", "size", fmt.Errorf("%s is not a regular file: %w", name, fs.ErrNotExist))
	}
	return fi.Size(), nil
}

func (s *sftpConn) List(dir string) ([]Entry, error) {
	infos, err := s.c.ReadDir(s.abs(dir))
	if err != nil {
		return nil, classifySFTPError("list", err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		kind := EntryOther
		switch {
		case fi.Mode().IsRegular():
			kind = EntryFile
		case fi.IsDir():
			kind = EntryFolder
		}
		entries = append(entries, Entry{Name: fi.Name(), Kind: kind, Size: fi.Size()})
	}
	return entries, nil
}

func (s *sftpConn) NameList(dir string) ([]string, error) {
	entries, err := s.List(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

func (s *sftpConn) RetrFrom(name string, offset int64) (io.ReadCloser, error) {
	f, err := s.c.Open(s.abs(name))
	if err != nil {
		return nil, classifySFTPError("open", err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, classifySFTPError("seek", err)
		}
	}
	return f, nil
}

func (s *sftpConn) Quit() error {
	err := s.c.Close()
	if cerr := s.ssh.Close(); err == nil {
		err = cerr
	}
	return err
}

// buildAuthMethods constructs SSH auth methods based on available credentials.
// Priority: password auth (if provided) > explicit SSH key > default SSH key paths.
func buildAuthMethods(password, sshKeyPath string) ([]ssh.AuthMethod, error) {
	if password != "" {
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	}

	keyPaths := resolveSSHKeyPaths(sshKeyPath)
	for _, kp := range keyPaths {
		pemBytes, err := os.ReadFile(kp)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			var ppErr *ssh.PassphraseMissingError
			if errors.As(err, &ppErr) {
				return nil, fmt.Errorf("sftp: SSH key %q is passphrase-protected; passphrase-protected keys are not supported", kp)
			}
			continue
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	return nil, fmt.Errorf("sftp: no authentication method available; set a password or an SSH key (tried %s)", strings.Join(keyPaths, ", "))
}

// resolveSSHKeyPaths returns explicitPath alone when set, otherwise the
// default ~/.ssh/id_ed25519 and ~/.ssh/id_rsa.
func resolveSSHKeyPaths(explicitPath string) []string {
	if explicitPath != "" {
		return []string{explicitPath}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
}

// classifySFTPError classifies SFTP/SSH errors into transient or permanent.
// os.ErrNotExist, permission and SSH exit errors are permanent. net.Error is transient.
func classifySFTPError(op string, err error) *ProtocolError {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return NewPermanentError("sftp", op, err)
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return NewPermanentError("sftp", op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError("sftp", op, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return NewTransientError("sftp", op, err)
	}
	return NewPermanentError("sftp", op, err)
}
