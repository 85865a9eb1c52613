// Package config loads server settings: defaults, then an optional YAML
// file, then CHESS_* environment variables. Command-line flags are applied
// last by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API     APIConfig     `yaml:"api"`
	Web     WebConfig     `yaml:"web"`
	Dev     bool          `yaml:"dev"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Archive ArchiveConfig `yaml:"archive"`
	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`
	Events  EventsConfig  `yaml:"events"`
	Log     LogConfig     `yaml:"log"`
	PIDFile string        `yaml:"pid_file"`
	PIDLock bool          `yaml:"pid_lock"`
}

type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type WebConfig struct {
	Serve bool   `yaml:"serve"`
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
}

type StorageConfig struct {
	Path string `yaml:"path"` // empty disables the journal
}

type RedisConfig struct {
	URL         string        `yaml:"url"` // empty disables the mirror
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

type ArchiveConfig struct {
	DatabaseURL string `yaml:"database_url"` // empty disables the archive
}

type AuthConfig struct {
	Secret   string        `yaml:"secret"` // generated per process when empty
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type SessionConfig struct {
	WaitingTTL   time.Duration `yaml:"waiting_ttl"`
	ReapInterval time.Duration `yaml:"reap_interval"`
	InitialClock time.Duration `yaml:"initial_clock"`
}

type EventsConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		API: APIConfig{Host: "localhost", Port: 8080},
		Web: WebConfig{Host: "localhost", Port: 9090},
		Redis: RedisConfig{
			SnapshotTTL: 24 * time.Hour,
		},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Session: SessionConfig{
			WaitingTTL:   30 * time.Minute,
			ReapInterval: time.Minute,
		},
		Events: EventsConfig{Workers: 4, QueueSize: 256},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path when non-empty, then applies environment overrides
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api port %d out of range", c.API.Port)
	}
	if c.Web.Serve && (c.Web.Port <= 0 || c.Web.Port > 65535) {
		return fmt.Errorf("web port %d out of range", c.Web.Port)
	}
	if c.PIDLock && c.PIDFile == "" {
		return fmt.Errorf("pid_lock requires pid_file")
	}
	if c.Events.Workers < 1 {
		return fmt.Errorf("events.workers must be at least 1")
	}
	if c.Auth.Secret != "" && len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth.secret must be at least 32 characters")
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	str("CHESS_API_HOST", &cfg.API.Host)
	num("CHESS_API_PORT", &cfg.API.Port)
	flag("CHESS_WEB_SERVE", &cfg.Web.Serve)
	str("CHESS_WEB_HOST", &cfg.Web.Host)
	num("CHESS_WEB_PORT", &cfg.Web.Port)
	flag("CHESS_DEV", &cfg.Dev)
	str("CHESS_STORAGE_PATH", &cfg.Storage.Path)
	str("CHESS_REDIS_URL", &cfg.Redis.URL)
	dur("CHESS_REDIS_SNAPSHOT_TTL", &cfg.Redis.SnapshotTTL)
	str("CHESS_DATABASE_URL", &cfg.Archive.DatabaseURL)
	str("CHESS_JWT_SECRET", &cfg.Auth.Secret)
	dur("CHESS_TOKEN_TTL", &cfg.Auth.TokenTTL)
	dur("CHESS_WAITING_TTL", &cfg.Session.WaitingTTL)
	dur("CHESS_REAP_INTERVAL", &cfg.Session.ReapInterval)
	dur("CHESS_INITIAL_CLOCK", &cfg.Session.InitialClock)
	num("CHESS_EVENT_WORKERS", &cfg.Events.Workers)
	num("CHESS_EVENT_QUEUE_SIZE", &cfg.Events.QueueSize)
	str("CHESS_LOG_LEVEL", &cfg.Log.Level)
	str("CHESS_LOG_FORMAT", &cfg.Log.Format)
	str("CHESS_LOG_FILE", &cfg.Log.File)
	str("CHESS_PID_FILE", &cfg.PIDFile)
	flag("CHESS_PID_LOCK", &cfg.PIDLock)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}
