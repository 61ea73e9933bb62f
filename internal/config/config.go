// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends accepted by LOCALFEED_STORE.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	Port          int           `env:"LOCALFEED_PORT"            envDefault:"8080"`
	Store         string        `env:"LOCALFEED_STORE"           envDefault:"sqlite"`
	DBPath        string        `env:"LOCALFEED_DB_PATH"         envDefault:"data/localfeed.db"`
	RedisURL      string        `env:"LOCALFEED_REDIS_URL"       envDefault:"redis://localhost:6379/0"`
	Namespace     string        `env:"LOCALFEED_NAMESPACE"       envDefault:"socialapp"`
	Latency       time.Duration `env:"LOCALFEED_LATENCY"         envDefault:"1s"`
	LogLevel      string        `env:"LOCALFEED_LOG_LEVEL"       envDefault:"info"`
	MediaMaxBytes int64         `env:"LOCALFEED_MEDIA_MAX_BYTES" envDefault:"33554432"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.Latency < 0 {
		return fmt.Errorf("config: negative latency %s", c.Latency)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level maps LogLevel to a slog level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return level, nil
}
