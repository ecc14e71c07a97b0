package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// UsernamePlaceholder is substituted with the requested username in UpstreamURL.
const UsernamePlaceholder = "{username}"

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8081"`
	Port      string `env:"PORT" default:"8081"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	StaticDir string `env:"STATIC_DIR" default:"./public"`
	RedisURL  string `env:"REDIS_URL"`

	UpstreamURL            string        `env:"UPSTREAM_URL" default:"ws://localhost:8090/live/{username}"`
	UpstreamConnectTimeout time.Duration `env:"UPSTREAM_CONNECT_TIMEOUT" default:"30s"`

	StreakTTL       time.Duration `env:"STREAK_TTL" default:"5s"`
	MessageDedupTTL time.Duration `env:"MESSAGE_DEDUP_TTL" default:"10s"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" default:"5s"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"1000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	WSConnectRate           float64 `env:"WS_CONNECT_RATE" default:"5"`
	WSConnectBurst          int     `env:"WS_CONNECT_BURST" default:"20"`
	CommandRateLimit        float64 `env:"COMMAND_RATE_LIMIT" default:"10"`
	CommandBurst            int     `env:"COMMAND_BURST" default:"20"`
}

// IsDevelopment reports whether the relay runs in development mode, which
// relaxes the WebSocket origin check to any localhost origin.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
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
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}

	u, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("UPSTREAM_URL is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("UPSTREAM_URL must use ws or wss, got %q", u.Scheme)
	}
	if !strings.Contains(cfg.UpstreamURL, UsernamePlaceholder) {
		return fmt.Errorf("UPSTREAM_URL must contain %s", UsernamePlaceholder)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"UPSTREAM_CONNECT_TIMEOUT", cfg.UpstreamConnectTimeout},
		{"STREAK_TTL", cfg.StreakTTL},
		{"MESSAGE_DEDUP_TTL", cfg.MessageDedupTTL},
		{"SWEEP_INTERVAL", cfg.SweepInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	if minTTL := min(cfg.StreakTTL, cfg.MessageDedupTTL); cfg.SweepInterval > minTTL {
		return fmt.Errorf("SWEEP_INTERVAL (%v) must not exceed the smaller TTL (%v)", cfg.SweepInterval, minTTL)
	}

	if cfg.MaxWebSocketConnections < 1 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be at least 1")
	}
	if cfg.MaxConnectionsPerIP < 1 {
		return errors.New("MAX_CONNECTIONS_PER_IP must be at least 1")
	}
	if cfg.WSConnectRate <= 0 {
		return errors.New("WS_CONNECT_RATE must be positive")
	}
	if cfg.WSConnectBurst < 1 {
		return errors.New("WS_CONNECT_BURST must be at least 1")
	}
	if cfg.CommandRateLimit <= 0 {
		return errors.New("COMMAND_RATE_LIMIT must be positive")
	}
	if cfg.CommandBurst < 1 {
		return errors.New("COMMAND_BURST must be at least 1")
	}

	return nil
}
