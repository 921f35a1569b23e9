// Package config loads service configuration from the environment, with an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

// Config is the runtime configuration of the server and CLI.
type Config struct {
	HTTPAddr        string
	DatabaseURL     string
	JournalPath     string
	LogLevel        string
	DefaultLocale   string
	AutoMigrate     bool
	SeedFile        string
	ShutdownTimeout time.Duration
}

// Load reads .env (if present) and the environment, then validates.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		HTTPAddr:        getenv("HTTP_ADDR"),
		DatabaseURL:     strings.TrimSpace(getenv("DATABASE_URL")),
		JournalPath:     strings.TrimSpace(getenv("JOURNAL_PATH")),
		LogLevel:        strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL"))),
		DefaultLocale:   strings.TrimSpace(getenv("DEFAULT_LOCALE")),
		SeedFile:        strings.TrimSpace(getenv("SEED_FILE")),
		ShutdownTimeout: 10 * time.Second,
	}
	if v := strings.TrimSpace(getenv("AUTO_MIGRATE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: AUTO_MIGRATE must be a boolean, got %q", v)
		}
		cfg.AutoMigrate = b
	}
	if v := strings.TrimSpace(getenv("SHUTDOWN_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills defaults and checks every field. It is called again after
// command-line flags override loaded values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.DefaultLocale == "" {
		c.DefaultLocale = "en"
	}
	if _, err := language.Parse(c.DefaultLocale); err != nil {
		return fmt.Errorf("config: DEFAULT_LOCALE %q: %w", c.DefaultLocale, err)
	}
	if c.DatabaseURL != "" {
		parsed, err := url.Parse(c.DatabaseURL)
		if err != nil {
			return fmt.Errorf("config: invalid DATABASE_URL: %w", err)
		}
		if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
			return fmt.Errorf("config: DATABASE_URL scheme must be postgres, got %q", parsed.Scheme)
		}
		if parsed.Host == "" {
			return fmt.Errorf("config: DATABASE_URL is missing a host")
		}
	}
	if c.AutoMigrate && c.DatabaseURL == "" {
		return fmt.Errorf("config: AUTO_MIGRATE requires DATABASE_URL")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// UsesPostgres reports whether the catalog lives in PostgreSQL rather than
// in memory.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown LOG_LEVEL %q", s)
}
