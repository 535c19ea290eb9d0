// Package config loads kstord's YAML configuration the way
// cmd/lockerd/main.go loads MetaLocker's: koanf.New(".") fed a single
// file.Provider/yaml.Parser pair, unmarshaled into a typed struct.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
)

// Config holds kstord's settings (spec.md §6's configuration block).
type Config struct {
	Database           string        `koanf:"database"`
	Socket             string        `koanf:"socket"`
	NWorkers           int           `koanf:"nworkers"`
	SessionIdleTimeout time.Duration `koanf:"session_idle_timeout"`
	SessionLifeTimeout time.Duration `koanf:"session_life_timeout"`
	LogLevel           string        `koanf:"log_level"`

	// GraylogURL, when set, layers a GraylogWriter onto the console logger
	// (internal/logging.WithGraylog). Empty means console-only logging.
	GraylogURL         string `koanf:"graylog_url"`
	GraylogServiceName string `koanf:"graylog_service_name"`
	GraylogInstance    string `koanf:"graylog_instance"`

	// ShutdownGrace is not a wire-level config field: it's the worker
	// pool's fixed drain timeout (spec.md §4's "graceful timeout (~10s)").
	ShutdownGrace time.Duration `koanf:"-"`
}

// Default mirrors the defaults named in spec.md §6.
func Default() *Config {
	return &Config{
		Database:           "kstor.db",
		Socket:             "kstor.sock",
		NWorkers:           5,
		SessionIdleTimeout: 900 * time.Second,
		SessionLifeTimeout: 14400 * time.Second,
		LogLevel:           "warn",
		GraylogServiceName: "kstord",
		ShutdownGrace:      10 * time.Second,
	}
}

// Load reads configDir/name.yaml, overlaying it on Default().
func Load(configDir, name string) (*Config, error) {
	cfg := Default()

	k := koanf.New(".")
	path := filepath.Join(configDir, fmt.Sprintf("%s.yaml", name))
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}

	raw := struct {
		Database           string `koanf:"database"`
		Socket             string `koanf:"socket"`
		NWorkers           int    `koanf:"nworkers"`
		SessionIdleTimeout int64  `koanf:"session_idle_timeout"`
		SessionLifeTimeout int64  `koanf:"session_life_timeout"`
		LogLevel           string `koanf:"log_level"`
		GraylogURL         string `koanf:"graylog_url"`
		GraylogServiceName string `koanf:"graylog_service_name"`
		GraylogInstance    string `koanf:"graylog_instance"`
	}{}
	if err := k.Unmarshal("", &raw); err != nil {
		return nil, err
	}

	if raw.Database != "" {
		cfg.Database = raw.Database
	}
	if raw.Socket != "" {
		cfg.Socket = raw.Socket
	}
	if raw.NWorkers != 0 {
		cfg.NWorkers = raw.NWorkers
	}
	if raw.SessionIdleTimeout != 0 {
		cfg.SessionIdleTimeout = time.Duration(raw.SessionIdleTimeout) * time.Second
	}
	if raw.SessionLifeTimeout != 0 {
		cfg.SessionLifeTimeout = time.Duration(raw.SessionLifeTimeout) * time.Second
	}
	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.GraylogURL != "" {
		cfg.GraylogURL = raw.GraylogURL
	}
	if raw.GraylogServiceName != "" {
		cfg.GraylogServiceName = raw.GraylogServiceName
	}
	if raw.GraylogInstance != "" {
		cfg.GraylogInstance = raw.GraylogInstance
	}

	return cfg, nil
}

// DefaultDir returns $HOME/.kstor, mirroring cmd.GetMetaLockerConfigDir.
func DefaultDir() string {
	return AbsPathify(filepath.Join("$HOME", ".kstor"))
}

// AbsPathify turns a relative or $HOME-prefixed path into an absolute
// one, ported from utils/fs.go's viper-derived helper.
func AbsPathify(inPath string) string {
	if inPath == "$HOME" || len(inPath) > 5 && inPath[:5] == "$HOME" && inPath[5] == os.PathSeparator {
		inPath = userHomeDir() + inPath[5:]
	}
	inPath = os.ExpandEnv(inPath)

	if filepath.IsAbs(inPath) {
		return filepath.Clean(inPath)
	}
	if p, err := filepath.Abs(inPath); err == nil {
		return filepath.Clean(p)
	}
	return inPath
}

func userHomeDir() string {
	if runtime.GOOS == "windows" {
		home := os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
		if home == "" {
			home = os.Getenv("USERPROFILE")
		}
		return home
	}
	return os.Getenv("HOME")
}
