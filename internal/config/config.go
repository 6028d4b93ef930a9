// Package config loads runtime configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sakif/echo-auth/internal/auth"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config holds runtime configuration for the server.
type Config struct {
	Port int `envconfig:"PORT" default:"8080"`

	// StoreBackend picks where accounts live: a SQLite file at DBPath or
	// plain JSON files under DataDir.
	StoreBackend string `envconfig:"STORE_BACKEND" default:"sqlite"`
	DBPath       string `envconfig:"DB_PATH" default:"data/accounts.db"`
	DataDir      string `envconfig:"DATA_DIR" default:"data"`

	PasswordHash string `envconfig:"PASSWORD_HASH" default:"bcrypt"`
	BcryptCost   int    `envconfig:"BCRYPT_COST" default:"12"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"debug"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// LoginRateLimit is requests per minute per client IP on login and
	// register.
	LoginRateLimit int `envconfig:"LOGIN_RATE_LIMIT" default:"10"`

	UnifyLoginErrors bool `envconfig:"HTTP_UNIFY_LOGIN_ERRORS" default:"true"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}

	switch c.StoreBackend {
	case BackendSQLite:
		if c.DBPath == "" {
			return errors.New("config: DB_PATH must be set for the sqlite backend")
		}
	case BackendFile:
		if c.DataDir == "" {
			return errors.New("config: DATA_DIR must be set for the file backend")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q (want %s or %s)", c.StoreBackend, BackendSQLite, BackendFile)
	}

	switch strings.ToLower(c.PasswordHash) {
	case auth.AlgorithmBcrypt, auth.AlgorithmArgon2id, auth.AlgorithmSHA256:
	default:
		return fmt.Errorf("config: unknown PASSWORD_HASH %q", c.PasswordHash)
	}

	if len(c.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be at least 16 characters")
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: TOKEN_TTL must be positive")
	}
	if c.LoginRateLimit <= 0 {
		return errors.New("config: LOGIN_RATE_LIMIT must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q", s)
	}
	return level, nil
}

// NewLogger returns a slog.Logger writing to w in the configured format
// ("json" or text) at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
