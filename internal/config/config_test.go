package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimal = `{
	// seedbox
	"server": {"host": "seedbox.example.com", "user": "me", "password": "keyring:seedbox",},
}`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := cfg.Server
	if s.Backend != "ftps" || s.Port != 21 || s.Timeout != 30 || s.TLSVerify == nil || !*s.TLSVerify {
		t.Errorf("server defaults = %+v", s)
	}
	tr := cfg.Transfer
	if tr.BlockSize != 262144 || tr.Segments != 4 || tr.MinSegmentSize != 8*1024*1024 ||
		tr.FileConcurrency != 1 || tr.SegmentAttempts != 1 || tr.PoolCeiling != 32 {
		t.Errorf("transfer defaults = %+v", tr)
	}
	if cfg.Paths.FTPRoot != "/" || cfg.Paths.DestDir != DEF_DEST_DIR {
		t.Errorf("paths = %+v", cfg.Paths)
	}
	if cfg.Secrets.KeyringService != "rtfetch" || cfg.Log.Level != "info" {
		t.Errorf("secrets/log = %+v %+v", cfg.Secrets, cfg.Log)
	}
	if tr.BytesPerSecond() != 0 {
		t.Errorf("BytesPerSecond = %d, want unlimited", tr.BytesPerSecond())
	}
	if s.TimeoutDuration().Seconds() != 30 {
		t.Errorf("TimeoutDuration = %v", s.TimeoutDuration())
	}
}

func TestParse_SFTPPort(t *testing.T) {
	cfg, err := Parse([]byte(`{"server": {"backend": "SFTP", "host": "10.0.0.2", "user": "me"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Backend != "sftp" || cfg.Server.Port != 22 {
		t.Errorf("server = %+v", cfg.Server)
	}
}

func TestParse_Explicit(t *testing.T) {
	doc := `{
		"server": {"host": "h", "user": "u", "port": 2121, "tls_verify": false, "timeout": 10},
		"transfer": {"segments": 8, "bandwidth_limit": "2 MiB", "file_concurrency": 3},
		"paths": {"ftp_root": "/downloads", "rtorrent_root": "/srv/rt", "dest_dir": "/data/inbox"},
	}`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if *cfg.Server.TLSVerify || cfg.Server.Port != 2121 || cfg.Server.Timeout != 10 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Transfer.Segments != 8 || cfg.Transfer.FileConcurrency != 3 {
		t.Errorf("transfer = %+v", cfg.Transfer)
	}
	if got := cfg.Transfer.BytesPerSecond(); got != 2*1024*1024 {
		t.Errorf("BytesPerSecond = %d", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"missing host", `{"server": {"user": "u"}}`, "server.host"},
		{"missing user", `{"server": {"host": "h"}}`, "server.user"},
		{"port range", `{"server": {"host": "h", "user": "u", "port": 70000}}`, "server.port"},
		{"timeout range", `{"server": {"host": "h", "user": "u", "timeout": 301}}`, "server.timeout"},
		{"backend", `{"server": {"host": "h", "user": "u", "backend": "http"}}`, "server.backend"},
		{"segments range", `{"server": {"host": "h", "user": "u"}, "transfer": {"segments": 33}}`, "transfer.segments"},
		{"block size range", `{"server": {"host": "h", "user": "u"}, "transfer": {"block_size": 512}}`, "transfer.block_size"},
		{"min segment size range", `{"server": {"host": "h", "user": "u"}, "transfer": {"min_segment_size": 209715200}}`, "transfer.min_segment_size"},
		{"file concurrency range", `{"server": {"host": "h", "user": "u"}, "transfer": {"file_concurrency": 17}}`, "transfer.file_concurrency"},
		{"bandwidth", `{"server": {"host": "h", "user": "u"}, "transfer": {"bandwidth_limit": "fast"}}`, "transfer.bandwidth_limit"},
		{"pool too small", `{"server": {"host": "h", "user": "u"}, "transfer": {"file_concurrency": 2, "segments": 32}}`, "transfer.pool_ceiling"},
		{"explicit pool ceiling too small", `{"server": {"host": "h", "user": "u"}, "transfer": {"segments": 4, "pool_ceiling": 3}}`, "transfer.pool_ceiling"},
		{"log level", `{"server": {"host": "h", "user": "u"}, "log": {"level": "loud"}}`, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var fe FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want FieldErrors", err)
			}
			found := false
			for _, f := range fe {
				if f.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("errors = %v, want one for %s", fe, tt.field)
			}
		})
	}
}

func TestParse_PoolCeilingFits(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"exact fit", `{"server": {"host": "h", "user": "u"}, "transfer": {"file_concurrency": 1, "segments": 32}}`},
		{"raised ceiling", `{"server": {"host": "h", "user": "u"}, "transfer": {"file_concurrency": 2, "segments": 32, "pool_ceiling": 64}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err != nil {
				t.Errorf("Parse: %v", err)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []string{
		`{"server": `,
		`{"server": {"host": "h", "user": "u"}, "bogus": 1}`,
		`{"server": {"host": "h", "user": "u", "port": "21"}}`,
	}
	for _, doc := range tests {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("Parse(%s): expected an error", doc)
		}
	}
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.jsonc")
	if err := os.WriteFile(p, []byte(minimal), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "seedbox.example.com" {
		t.Errorf("Host = %q", cfg.Server.Host)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.jsonc")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want ErrNotExist", err)
	}

	if err := os.WriteFile(p, []byte(`{"server": {}}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil || !strings.Contains(err.Error(), p) {
		t.Errorf("Load(invalid) = %v, want an error naming the file", err)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("RTFETCH_CONFIG", "/etc/rtfetch.jsonc")
	if got := DefaultPath(); got != "/etc/rtfetch.jsonc" {
		t.Errorf("DefaultPath = %q", got)
	}
}
