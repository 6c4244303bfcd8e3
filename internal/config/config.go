// internal/config/config.go
//
// Process configuration from the environment.
// A .env file in the working directory is loaded first when present;
// real environment variables always win over it.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the server.
type Config struct {
	Port           string        `env:"PORT"              envDefault:"5175"`
	LogLevel       string        `env:"LOG_LEVEL"         envDefault:"info"`
	DatabasePath   string        `env:"DATABASE_PATH"     envDefault:"./data/ladders.db"`
	JWTSecret      string        `env:"JWT_SECRET"        envDefault:"dev_secret_change_me"`
	JWTExpiresDays int           `env:"JWT_EXPIRES_DAYS"  envDefault:"14"`
	JoinCodeSalt   string        `env:"JOIN_CODE_SALT"    envDefault:"local_dev_salt"`
	ClientOrigin   string        `env:"CLIENT_ORIGIN"     envDefault:"http://localhost:5173"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"   envDefault:"10s"`
	RedisURL       string        `env:"REDIS_URL"`
	OverlayTTL     time.Duration `env:"OVERLAY_CACHE_TTL" envDefault:"30s"`
	WebhookURL     string        `env:"WEBHOOK_URL"`
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT"   envDefault:"5s"`
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWTExpiresDays <= 0 {
		return Config{}, fmt.Errorf("parse env: JWT_EXPIRES_DAYS must be positive, got %d", cfg.JWTExpiresDays)
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return ":" + c.Port }
