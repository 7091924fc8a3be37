// Package config loads the server configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"backtest-lab/internal/domain"
)

// Config is the top-level configuration for the backtest server.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
	Ingestion Ingestion `yaml:"ingestion"`
	Logging   Logging   `yaml:"logging"`
	Backtest  Backtest  `yaml:"backtest"`
}

// Storage selects and configures the persistence backends.
type Storage struct {
	UseMemory     bool   `yaml:"use_memory"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Addr string `yaml:"addr"`
}

// Ingestion configures the completion event feed.
type Ingestion struct {
	Endpoint     string        `yaml:"endpoint"`
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backtest holds the warm-start request set and pool sizing.
type Backtest struct {
	Workers      int                      `yaml:"workers"`
	CacheResults bool                     `yaml:"cache_results"`
	Requests     []domain.BackTestRequest `yaml:"requests"`
}

// Default returns a configuration usable without a file: memory storage,
// no ingestion feed.
func Default() *Config {
	return &Config{
		Storage: Storage{UseMemory: true},
		Server:  Server{Addr: ":8080"},
		Ingestion: Ingestion{
			ReconnectMin: time.Second,
			ReconnectMax: 30 * time.Second,
		},
		Logging:  Logging{Level: "info", Format: "json"},
		Backtest: Backtest{CacheResults: true},
	}
}

// Load reads the YAML configuration file at path over Default(), then
// applies environment overrides and validates the result. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set. A DSN in the
// environment switches memory storage off.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
		cfg.Storage.UseMemory = false
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickHouseDSN = v
		cfg.Storage.UseMemory = false
	}
	if v := os.Getenv("INGESTION_WS_ENDPOINT"); v != "" {
		cfg.Ingestion.Endpoint = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BACKTEST_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BACKTEST_WORKERS: %w", err)
		}
		cfg.Backtest.Workers = n
	}
	return nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if !c.Storage.UseMemory {
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required unless storage.use_memory is set"))
		}
		if c.Storage.ClickHouseDSN == "" {
			errs = append(errs, errors.New("storage.clickhouse_dsn is required unless storage.use_memory is set"))
		}
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Backtest.Workers < 0 {
		errs = append(errs, fmt.Errorf("backtest.workers must not be negative, got %d", c.Backtest.Workers))
	}
	if c.Ingestion.ReconnectMin <= 0 || c.Ingestion.ReconnectMax < c.Ingestion.ReconnectMin {
		errs = append(errs, fmt.Errorf("ingestion reconnect backoff must satisfy 0 < min <= max, got %s..%s",
			c.Ingestion.ReconnectMin, c.Ingestion.ReconnectMax))
	}
	if c.Ingestion.Endpoint != "" &&
		!strings.HasPrefix(c.Ingestion.Endpoint, "ws://") && !strings.HasPrefix(c.Ingestion.Endpoint, "wss://") {
		errs = append(errs, fmt.Errorf("ingestion.endpoint must be a ws:// or wss:// URL, got %q", c.Ingestion.Endpoint))
	}

	seen := make(map[string]struct{}, len(c.Backtest.Requests))
	for i, r := range c.Backtest.Requests {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("backtest.requests[%d]: id is required", i))
			continue
		}
		if _, dup := seen[r.ID]; dup {
			errs = append(errs, fmt.Errorf("backtest.requests[%d]: duplicate id %q", i, r.ID))
		}
		seen[r.ID] = struct{}{}
	}

	return errors.Join(errs...)
}
