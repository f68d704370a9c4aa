// Package config loads the rtfetch configuration file. The file is JSON
// with comments and trailing commas allowed.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tailscale/hujson"
)

const (
	DEF_PORT_FTPS        = 21
	DEF_PORT_SFTP        = 22
	DEF_TIMEOUT          = 30
	DEF_BLOCK_SIZE       = 262144
	DEF_SEGMENTS         = 4
	DEF_MIN_SEGMENT_SIZE = 8 * 1024 * 1024
	DEF_FILE_CONCURRENCY = 1
	DEF_SEGMENT_ATTEMPTS = 1
	DEF_POOL_CEILING     = 32
	DEF_DEST_DIR         = "./downloads"
	DEF_KEYRING_SERVICE  = "rtfetch"
)

// Server describes the remote endpoint.
type Server struct {
	Backend  string `json:"backend" validate:"oneof=ftps ftp sftp"`
	Host     string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port     int    `json:"port" validate:"min=1,max=65535"`
	User     string `json:"user" validate:"required"`
	Password string `json:"password"`
	// TLSVerify checks the server certificate. Defaults to true.
	TLSVerify *bool `json:"tls_verify"`
	// DisableEPSV falls back to PASV for servers behind NAT that answer
	// EPSV wrongly. Transfers are always passive.
	DisableEPSV    bool   `json:"disable_epsv"`
	Timeout        int    `json:"timeout" validate:"min=1,max=300"`
	SSHKeyPath     string `json:"ssh_key_path"`
	KnownHostsPath string `json:"known_hosts_path"`
}

// Transfer tunes the download engine.
type Transfer struct {
	BlockSize       int64  `json:"block_size" validate:"min=1024,max=10485760"`
	Segments        int    `json:"segments" validate:"min=1,max=32"`
	MinSegmentSize  int64  `json:"min_segment_size" validate:"min=1024,max=104857600"`
	FileConcurrency int    `json:"file_concurrency" validate:"min=1,max=16"`
	SegmentAttempts int    `json:"segment_attempts" validate:"min=1,max=10"`
	PoolCeiling     int    `json:"pool_ceiling" validate:"min=1,max=128"`
	BandwidthLimit  string `json:"bandwidth_limit" validate:"omitempty,bytesize"`
	MaxConnAge      int    `json:"max_conn_age" validate:"min=0"`
	MaxIdleTime     int    `json:"max_idle_time" validate:"min=0"`
}

// Paths maps remote locations onto local ones.
type Paths struct {
	FTPRoot      string `json:"ftp_root"`
	RTorrentRoot string `json:"rtorrent_root"`
	DestDir      string `json:"dest_dir" validate:"required"`
}

// Secrets controls how secret references are resolved.
type Secrets struct {
	UseDotenv      bool   `json:"use_dotenv"`
	DotenvPath     string `json:"dotenv_path"`
	KeyringService string `json:"keyring_service"`
	// FallbackDir holds secret files used when the OS keyring is unavailable.
	FallbackDir string `json:"fallback_dir"`
}

// Log configures logging.
type Log struct {
	Level string `json:"level" validate:"omitempty,oneof=debug info warning warn error"`
	File  string `json:"file"`
}

// Config is the whole configuration file.
type Config struct {
	Server   Server   `json:"server"`
	Transfer Transfer `json:"transfer"`
	Paths    Paths    `json:"paths"`
	Secrets  Secrets  `json:"secrets"`
	Log      Log      `json:"log"`
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration document.
func Parse(data []byte) (*Config, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg := &Config{}
	dec := json.NewDecoder(bytes.NewReader(std))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	s := &c.Server
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = "ftps"
	}
	if s.Port == 0 {
		s.Port = DEF_PORT_FTPS
		if s.Backend == "sftp" {
			s.Port = DEF_PORT_SFTP
		}
	}
	if s.TLSVerify == nil {
		s.TLSVerify = boolPtr(true)
	}
	if s.Timeout == 0 {
		s.Timeout = DEF_TIMEOUT
	}

	t := &c.Transfer
	if t.BlockSize == 0 {
		t.BlockSize = DEF_BLOCK_SIZE
	}
	if t.Segments == 0 {
		t.Segments = DEF_SEGMENTS
	}
	if t.MinSegmentSize == 0 {
		t.MinSegmentSize = DEF_MIN_SEGMENT_SIZE
	}
	if t.FileConcurrency == 0 {
		t.FileConcurrency = DEF_FILE_CONCURRENCY
	}
	if t.SegmentAttempts == 0 {
		t.SegmentAttempts = DEF_SEGMENT_ATTEMPTS
	}
	if t.PoolCeiling == 0 {
		t.PoolCeiling = DEF_POOL_CEILING
	}

	if c.Paths.FTPRoot == "" {
		c.Paths.FTPRoot = "/"
	}
	if c.Paths.DestDir == "" {
		c.Paths.DestDir = DEF_DEST_DIR
	}
	if c.Secrets.KeyringService == "" {
		c.Secrets.KeyringService = DEF_KEYRING_SERVICE
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// TimeoutDuration returns the network timeout.
func (s Server) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// BytesPerSecond parses the bandwidth limit. Zero means unlimited.
func (t Transfer) BytesPerSecond() int64 {
	if t.BandwidthLimit == "" {
		return 0
	}
	n, err := humanize.ParseBytes(t.BandwidthLimit)
	if err != nil {
		return 0
	}
	return int64(n)
}

// DefaultPath returns the configuration file used when none is given:
// $RTFETCH_CONFIG, else rtfetch/config.jsonc in the user config directory.
func DefaultPath() string {
	if p := os.Getenv("RTFETCH_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.jsonc"
	}
	return filepath.Join(dir, "rtfetch", "config.jsonc")
}

func boolPtr(b bool) *bool { return &b }
