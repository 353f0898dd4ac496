package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration values.
type Config struct {
	App struct {
		Port int `envconfig:"HTTP_PORT" default:"8080"`
	}

	DB struct {
		DSN string `envconfig:"DATABASE_DSN" default:"file:pharmapos.db"`
	}

	Auth struct {
		Secret string `envconfig:"JWT_SECRET" default:"dev_secret"`
	}

	Seed struct {
		// Path to the medicine intake CSV; empty skips seeding.
		MedicineCSV string `envconfig:"MEDICINE_CSV" default:""`
	}

	Server struct {
		ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
		WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	}
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}
