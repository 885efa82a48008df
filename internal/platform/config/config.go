package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"3000"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	StaticDir string `env:"STATIC_DIR" default:"public"`

	StorageBackend string `env:"STORAGE_BACKEND" default:"file"`
	DBFile         string `env:"DB_FILE" default:"db.json"`
	RedisURL       string `env:"REDIS_URL"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" default:"ledsync"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" default:"ledsync-server"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" default:"ledsync"`

	WSAllowedOrigins        []string `env:"WS_ALLOWED_ORIGINS"`
	MaxWebSocketConnections int      `env:"MAX_WEBSOCKET_CONNECTIONS" default:"1000"`

	// Per-client budget for POST /led toggles.
	HTTPRateLimit float64 `env:"HTTP_RATE_LIMIT" default:"20"`
	HTTPRateBurst int     `env:"HTTP_RATE_BURST" default:"40"`
	// Per-client budget for POST /data; sensors post on a fixed cadence.
	ReadingRateLimit float64 `env:"READING_RATE_LIMIT" default:"50"`
	ReadingRateBurst int     `env:"READING_RATE_BURST" default:"100"`
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// MQTTEnabled reports whether deltas are mirrored to an MQTT broker.
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBrokerURL != ""
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}

	switch cfg.StorageBackend {
	case BackendFile:
		if cfg.DBFile == "" {
			return errors.New("DB_FILE is required when STORAGE_BACKEND is file")
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when STORAGE_BACKEND is redis")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendFile, BackendRedis, cfg.StorageBackend)
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", cfg.LogFormat)
	}

	if cfg.MaxWebSocketConnections < 0 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must not be negative")
	}

	if cfg.HTTPRateLimit <= 0 || cfg.HTTPRateBurst <= 0 {
		return errors.New("HTTP_RATE_LIMIT and HTTP_RATE_BURST must be positive")
	}

	if cfg.ReadingRateLimit <= 0 || cfg.ReadingRateBurst <= 0 {
		return errors.New("READING_RATE_LIMIT and READING_RATE_BURST must be positive")
	}

	return nil
}
