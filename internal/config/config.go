// Package config содержит логику чтения конфигурации мастера бронирования.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress  = "localhost:8080"
	defaultCatalogPath = "configs/catalog.yaml"
)

// Config содержит параметры конфигурации мастера бронирования.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	BookingAPIAddress string `env:"BOOKING_API_ADDRESS"`
	RedisAddress      string `env:"REDIS_ADDRESS"`
	CatalogPath       string `env:"CATALOG_PATH"`
	SessionSecret     string `env:"SESSION_SECRET"`

	RedisPassword       string        `env:"REDIS_PASSWORD"`
	RedisDB             int           `env:"REDIS_DB" envDefault:"0"`
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SubmitRatePerMinute int           `env:"SUBMIT_RATE_PER_MINUTE" envDefault:"6"`
	SecureCookies       bool          `env:"SECURE_COOKIES" envDefault:"false"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен; уже заданные переменные окружения он не перекрывает.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envBookingAPIAddress := cfg.BookingAPIAddress
	envRedisAddress := cfg.RedisAddress
	envCatalogPath := cfg.CatalogPath
	envSessionSecret := cfg.SessionSecret

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.BookingAPIAddress, "b", "", "remote booking API address")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for draft persistence")
	flag.StringVar(&cfg.CatalogPath, "c", defaultCatalogPath, "path to catalog YAML")
	flag.StringVar(&cfg.SessionSecret, "s", "", "secret for signing session cookies")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envBookingAPIAddress != "" {
		cfg.BookingAPIAddress = envBookingAPIAddress
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envCatalogPath != "" {
		cfg.CatalogPath = envCatalogPath
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = defaultCatalogPath
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURI == "" && c.BookingAPIAddress == "" {
		return errors.New("either database URI or booking API address must be set")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session TTL must not be negative, got %s", c.SessionTTL)
	}
	return nil
}
