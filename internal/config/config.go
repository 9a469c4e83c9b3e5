// Package config defines the resolved runtime configuration for the
// datacored daemon: data directory layout, listen/metrics addresses, and
// logging verbosity, following the teacher's node.Config shape
// (DefaultConfig / Validate / InitDataDir).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Config holds every value a datacored process needs to start: where it
// persists its core, where it listens for replication peers, and where it
// exposes metrics.
type Config struct {
	// DataDir is the root directory holding the keypair and the three
	// storage backends (content, blocks, state).
	DataDir string
	// ListenAddr is the TCP address the replication server accepts
	// connections on.
	ListenAddr string
	// MetricsAddr is the TCP address the Prometheus exporter serves
	// /metrics on. Empty disables metrics serving.
	MetricsAddr string
	// Peers are addresses of remote datacored instances to dial and
	// replicate from as the initiating side, in addition to accepting
	// inbound connections.
	Peers []string
	// KeepaliveSeconds is the wire-level keepalive timeout; zero selects
	// wire.DefaultKeepalive.
	KeepaliveSeconds int
	// Verbosity is a 0-5 log level, following the teacher's convention.
	Verbosity int
}

// DefaultConfig returns a Config with sensible defaults for local use.
func DefaultConfig() Config {
	return Config{
		DataDir:          defaultDataDir(),
		ListenAddr:       ":7670",
		MetricsAddr:      ":9670",
		KeepaliveSeconds: 10,
		Verbosity:        3,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".datacore"
	}
	return filepath.Join(home, ".datacore")
}

// Validate reports whether cfg is internally consistent.
func (cfg *Config) Validate() error {
	if cfg.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}
	if cfg.ListenAddr == "" {
		return errors.New("config: listen address must not be empty")
	}
	if cfg.KeepaliveSeconds < 0 {
		return errors.New("config: keepalive seconds must not be negative")
	}
	if cfg.Verbosity < 0 || cfg.Verbosity > 5 {
		return fmt.Errorf("config: verbosity %d out of range [0,5]", cfg.Verbosity)
	}
	return nil
}

// InitDataDir creates cfg.DataDir (and any missing parents) if it does
// not already exist.
func (cfg *Config) InitDataDir() error {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("config: create datadir %q: %w", cfg.DataDir, err)
	}
	return nil
}

// KeyPath returns the path of the keypair file within DataDir.
func (cfg *Config) KeyPath() string {
	return filepath.Join(cfg.DataDir, "identity.key")
}

// ContentPath, BlockPath, and StatePath return the paths of the three
// disk-backed storage files within DataDir.
func (cfg *Config) ContentPath() string { return filepath.Join(cfg.DataDir, "content.dat") }
func (cfg *Config) BlockPath() string   { return filepath.Join(cfg.DataDir, "blocks.dat") }
func (cfg *Config) StatePath() string   { return filepath.Join(cfg.DataDir, "state.dat") }

// VerbosityToLogLevel maps the teacher's 0-5 verbosity scale onto a
// logrus.Level, following node.VerbosityToLogLevel's table.
func VerbosityToLogLevel(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.PanicLevel
	case verbosity == 1:
		return logrus.ErrorLevel
	case verbosity == 2:
		return logrus.WarnLevel
	case verbosity == 3:
		return logrus.InfoLevel
	case verbosity == 4:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}
