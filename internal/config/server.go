package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ServerConfig holds the settings of the API server.
type ServerConfig struct {
	Addr           string        `env:"TABLETOP_ADDR"            envDefault:":8080"`
	DBPath         string        `env:"TABLETOP_DB_PATH"         envDefault:"tabletop.db"`
	HTTPTimeout    time.Duration `env:"TABLETOP_HTTP_TIMEOUT"    envDefault:"10s"`
	MaxInFlight    int64         `env:"TABLETOP_MAX_IN_FLIGHT"`
	RatePerSecond  float64       `env:"TABLETOP_RATE_PER_SECOND"`
	StatusInterval time.Duration `env:"TABLETOP_STATUS_INTERVAL" envDefault:"500ms"`
	OTelEndpoint   string        `env:"TABLETOP_OTEL_ENDPOINT"`
	Verbose        bool          `env:"TABLETOP_VERBOSE"`
}

// LoadServerConfig loads the given dotenv files, if they exist, and parses
// the environment. Variables already set win over dotenv values.
func LoadServerConfig(dotenv ...string) (ServerConfig, error) {
	for _, file := range dotenv {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ServerConfig{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func (c ServerConfig) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("TABLETOP_ADDR: must not be empty"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("TABLETOP_HTTP_TIMEOUT: must be positive, got %v", c.HTTPTimeout))
	}
	if c.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("TABLETOP_MAX_IN_FLIGHT: must not be negative, got %d", c.MaxInFlight))
	}
	if c.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("TABLETOP_RATE_PER_SECOND: must not be negative, got %v", c.RatePerSecond))
	}
	if c.StatusInterval <= 0 {
		errs = append(errs, fmt.Errorf("TABLETOP_STATUS_INTERVAL: must be positive, got %v", c.StatusInterval))
	}
	return errors.Join(errs...)
}
