package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/warpdl/rtfetch/internal/config"
	"github.com/warpdl/rtfetch/pkg/credman"
	"github.com/warpdl/rtfetch/pkg/credman/keyring"
	"github.com/warpdl/rtfetch/pkg/fetchlib"
	"github.com/warpdl/rtfetch/pkg/logger"
)

// session owns everything one command run needs: a single pool shared by
// the resolver and the engine, and the stats they report into.
type session struct {
	cfg      *config.Config
	log      logger.Logger
	stats    *fetchlib.StatsTracker
	pool     *fetchlib.Pool
	resolver *fetchlib.Resolver
	engine   *fetchlib.Engine
}

// loadConfig reads the file named by --config, or the default location.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// newLogger builds the console logger, teeing into log.file when set.
// level overrides the configured level when non-empty.
func newLogger(cfg *config.Config, level string, debug bool, stderr io.Writer) (logger.Logger, error) {
	if level == "" {
		level = cfg.Log.Level
	}
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if debug {
		lvl = logger.LevelDebug
	}
	console := logger.NewStandardLogger(log.New(stderr, "", log.LstdFlags))
	console.SetLevel(lvl)
	if cfg.Log.File == "" {
		return console, nil
	}
	fl, err := logger.NewFileLogger(cfg.Log.File, lvl)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return logger.NewMultiLogger(console, fl), nil
}

// secretStores returns the keyring of a service, falling back to files
// under dir/<service> when the OS keyring cannot be used.
func secretStores(dir string) credman.StoreFactory {
	return func(service string) keyring.Store {
		return &keyring.Fallback{
			Primary:   keyring.NewKeyring(service),
			Secondary: keyring.NewFileStore(filepath.Join(dir, service)),
		}
	}
}

func secretFallbackDir(cfg *config.Config) string {
	if cfg.Secrets.FallbackDir != "" {
		return cfg.Secrets.FallbackDir
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "secrets")
	}
	return filepath.Join(dir, "rtfetch", "secrets")
}

func newSecretResolver(cfg *config.Config) (*credman.Resolver, error) {
	r := credman.NewResolver(secretStores(secretFallbackDir(cfg)))
	r.Service = cfg.Secrets.KeyringService
	r.User = cfg.Server.User
	if cfg.Secrets.UseDotenv {
		path := cfg.Secrets.DotenvPath
		if path == "" {
			path = ".env"
		}
		if err := r.LoadDotenv(path); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func newDialer(cfg *config.Config, password string) fetchlib.Dialer {
	s := cfg.Server
	opts := fetchlib.ServerOpts{
		Host:           s.Host,
		Port:           s.Port,
		User:           s.User,
		Password:       password,
		TLSVerify:      *s.TLSVerify,
		DisableTLS:     s.Backend == "ftp",
		DisableEPSV:    s.DisableEPSV,
		Timeout:        s.TimeoutDuration(),
		SSHKeyPath:     s.SSHKeyPath,
		KnownHostsPath: s.KnownHostsPath,
	}
	if s.Backend == "sftp" {
		return fetchlib.NewSFTPDialer(opts)
	}
	return fetchlib.NewFTPDialer(opts)
}

// openSession wires the pool, resolver and engine for cfg. No connection
// is made until the first Acquire.
func openSession(cfg *config.Config, l logger.Logger) (*session, error) {
	secrets, err := newSecretResolver(cfg)
	if err != nil {
		return nil, err
	}
	password := ""
	if cfg.Server.Password != "" {
		password, err = secrets.Resolve(cfg.Server.Password)
		if err != nil {
			return nil, fmt.Errorf("resolve password: %w", err)
		}
	}

	t := cfg.Transfer
	stats := fetchlib.NewStatsTracker()
	pool := fetchlib.NewPool(newDialer(cfg, password), fetchlib.PoolOpts{
		MaxConns:    fetchlib.PoolCapacity(t.FileConcurrency, t.Segments, t.PoolCeiling),
		MaxConnAge:  time.Duration(t.MaxConnAge) * time.Second,
		MaxIdleTime: time.Duration(t.MaxIdleTime) * time.Second,
		Stats:       stats,
		Logger:      l,
	})
	resolver := fetchlib.NewResolver(pool, cfg.Paths.FTPRoot, l)
	engine := fetchlib.NewEngine(pool, resolver, fetchlib.EngineOpts{
		BlockSize:         t.BlockSize,
		Segments:          t.Segments,
		MinSegmentSize:    t.MinSegmentSize,
		SegmentAttempts:   t.SegmentAttempts,
		MaxBytesPerSecond: t.BytesPerSecond(),
		Stats:             stats,
		Logger:            l,
	})
	l.Debug("pool capacity %d, backend %s://%s:%d",
		fetchlib.PoolCapacity(t.FileConcurrency, t.Segments, t.PoolCeiling),
		cfg.Server.Backend, cfg.Server.Host, cfg.Server.Port)
	return &session{
		cfg:      cfg,
		log:      l,
		stats:    stats,
		pool:     pool,
		resolver: resolver,
		engine:   engine,
	}, nil
}

// Close shuts the pool down, quitting every idle connection.
func (s *session) Close() error {
	return s.pool.Close()
}
