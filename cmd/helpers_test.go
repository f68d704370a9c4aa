package cmd

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/warpdl/rtfetch/internal/config"
)

// resetGlobals points the command globals at test-local values and restores
// them when the test ends.
func resetGlobals(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()
	oldStdin, oldStdout, oldStderr, oldLockDir := stdin, stdout, stderr, lockDir
	t.Cleanup(func() {
		stdin, stdout, stderr, lockDir = oldStdin, oldStdout, oldStderr, oldLockDir
		configPath, logLevel, verbose = "", "", false
		jobsPath, dryRun, destDir, noProgress = "", false, "", false
	})
	configPath, logLevel, verbose = "", "", false
	jobsPath, dryRun, destDir, noProgress = "", false, "", false

	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	stdout, stderr = out, errOut
	stdin = strings.NewReader("")
	dir := t.TempDir()
	lockDir = func() string { return dir }
	return out, errOut
}

func payload(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

// configDoc renders a config for the local test server.
func configDoc(port int, dest, secrets string) string {
	return fmt.Sprintf(`{
	// local test server, plain FTP
	"server": {
		"backend": "ftp",
		"host": "127.0.0.1",
		"port": %d,
		"user": "seedbox",
		"password": "secret",
		"timeout": 5,
	},
	"transfer": {
		"block_size": 16384,
		"segments": 4,
		"min_segment_size": 65536,
		"file_concurrency": 2,
	},
	"paths": {"ftp_root": "/done", "rtorrent_root": "/srv/rt/done", "dest_dir": %q},
	"secrets": {"fallback_dir": %q},
	"log": {"level": "debug"},
}`, port, dest, secrets)
}

func testConfig(t *testing.T, port int, dest string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(configDoc(port, dest, t.TempDir())))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func assertFile(t *testing.T, path string, want []byte) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("read %s: %v", path, err)
		return
	}
	if !bytes.Equal(got, want) {
		t.Errorf("%s: got %d bytes, want %d identical bytes", path, len(got), len(want))
	}
}

func assertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}
