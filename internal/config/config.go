package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config holds all environment-driven settings for the relay.
//
// TokenSecret and BroadcastSecret are deliberately not required at load
// time: a relay without a signing secret still serves broadcast submission
// and health endpoints, and a relay without a broadcast secret still serves
// client connections. The affected capability fails per-request instead.
type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Host   string `env:"HOST" default:"0.0.0.0"`
	Port   string `env:"PORT" default:"8080"`
	AppURL string `env:"APP_URL"`

	BroadcastSecret string `env:"BROADCAST_SECRET"`

	TokenSecret   string        `env:"TOKEN_SECRET"`
	TokenIssuer   string        `env:"TOKEN_ISSUER" default:"notify-relay"`
	TokenAudience string        `env:"TOKEN_AUDIENCE" default:"notify-relay-clients"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" default:"15m"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	MaxConnections      int64   `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRate      float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst     int     `env:"CONNECTION_BURST" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive, got %d", cfg.MaxConnectionsPerIP)
	}
	if cfg.ConnectionRate <= 0 {
		return fmt.Errorf("CONNECTION_RATE must be positive, got %v", cfg.ConnectionRate)
	}
	return nil
}

// WarnMissingSecrets logs startup warnings for capabilities disabled by
// missing secrets. The process keeps running either way.
func (c *Config) WarnMissingSecrets() {
	if c.TokenSecret == "" {
		slog.Warn("TOKEN_SECRET not set: token issuance and verification are disabled, all client connections will be rejected")
	}
	if c.BroadcastSecret == "" {
		slog.Warn("BROADCAST_SECRET not set: broadcast submission is disabled and will respond 503")
	}
}
