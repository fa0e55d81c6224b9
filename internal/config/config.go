package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server  ServerConfig
	GRPC    GRPCConfig
	API     APIConfig
	Worker  WorkerConfig
	DB      DatabaseConfig
	Uploads UploadConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"localhost"`
	Port            int           `env:"SERVER_PORT" envDefault:"8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type GRPCConfig struct {
	Enabled             bool          `env:"GRPC_ENABLED" envDefault:"true"`
	Port                int           `env:"GRPC_PORT" envDefault:"50051"`
	HealthCheckInterval time.Duration `env:"HEALTH_CHECK_INTERVAL" envDefault:"15s"`
}

type APIConfig struct {
	RateLimit   int      `env:"RATE_LIMIT_RPS" envDefault:"5"`
	CORSOrigins []string `env:"CORS_ALLOW_ORIGINS" envDefault:"*" envSeparator:","`
}

type WorkerConfig struct {
	Count      int `env:"WORKER_COUNT" envDefault:"2"`
	BufferSize int `env:"WORKER_BUFFER_SIZE" envDefault:"20"`
}

type DatabaseConfig struct {
	Path string `env:"DB_PATH" envDefault:"./data/disaster_reports.db"`
}

type UploadConfig struct {
	Dir      string `env:"UPLOAD_DIR" envDefault:"./data/uploads"`
	MaxBytes int64  `env:"UPLOAD_MAX_BYTES" envDefault:"33554432"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.GRPC.Enabled {
		if c.GRPC.Port < 1 || c.GRPC.Port > 65535 {
			return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
		}
		if c.GRPC.Port == c.Server.Port {
			return fmt.Errorf("gRPC port %d collides with server port", c.GRPC.Port)
		}
		if c.GRPC.HealthCheckInterval < time.Second {
			return fmt.Errorf("health check interval must be at least 1 second")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.DB.Path == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	if c.Uploads.Dir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}

	if c.API.RateLimit < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS must be at least 1")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.Worker.BufferSize < 0 {
		return fmt.Errorf("WORKER_BUFFER_SIZE must not be negative")
	}

	return nil
}
