package cmd

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/spf13/afero"
)

// seedboxDriver implements ftpserver.MainDriver over an in-memory filesystem.
type seedboxDriver struct {
	fs       afero.Fs
	listener net.Listener
}

func (d *seedboxDriver) GetSettings() (*ftpserver.Settings, error) {
	return &ftpserver.Settings{
		Listener:    d.listener,
		IdleTimeout: 30,
	}, nil
}

func (d *seedboxDriver) ClientConnected(_ ftpserver.ClientContext) (string, error) {
	return "seedbox", nil
}

func (d *seedboxDriver) ClientDisconnected(_ ftpserver.ClientContext) {}

func (d *seedboxDriver) AuthUser(_ ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	if user == "seedbox" && pass == "secret" {
		return afero.NewBasePathFs(d.fs, "/"), nil
	}
	return nil, fmt.Errorf("invalid credentials")
}

func (d *seedboxDriver) GetTLSConfig() (*tls.Config, error) {
	return nil, errors.New("TLS not configured")
}

// startSeedbox serves files on a random local port and returns the port.
func startSeedbox(t *testing.T, files map[string][]byte) int {
	t.Helper()
	memFs := afero.NewMemMapFs()
	for p, data := range files {
		if err := afero.WriteFile(memFs, p, data, 0644); err != nil {
			t.Fatalf("failed to create %s: %v", p, err)
		}
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := ftpserver.NewFtpServer(&seedboxDriver{fs: memFs, listener: listener})
	go func() {
		_ = server.ListenAndServe()
	}()
	t.Cleanup(func() { server.Stop() })

	// Wait for server to be ready
	time.Sleep(100 * time.Millisecond)
	return listener.Addr().(*net.TCPAddr).Port
}
