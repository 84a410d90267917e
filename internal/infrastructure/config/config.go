// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	API           APIConfig           `yaml:"api"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Matching      MatchingConfig      `yaml:"matching"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// APIConfig holds HTTP server configuration
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ProvidersConfig holds aggregator credentials, keyed per provider.
// A provider with no credentials is treated as not configured and is
// excluded from the provider list exposed to callers.
type ProvidersConfig struct {
	Bankdata BankdataConfig `yaml:"bankdata"`
	Linknode LinknodeConfig `yaml:"linknode"`
}

// BankdataConfig holds credentials for the redirect-based aggregator.
type BankdataConfig struct {
	SecretID    string `yaml:"secret_id"`
	SecretKey   string `yaml:"secret_key"`
	BaseURL     string `yaml:"base_url"`
	RedirectURL string `yaml:"redirect_url"`
}

// LinknodeConfig holds credentials for the token-based aggregator.
type LinknodeConfig struct {
	ClientID string `yaml:"client_id"`
	Secret   string `yaml:"secret"`
	BaseURL  string `yaml:"base_url"`
}

// Configured reports whether credentials are present.
func (c BankdataConfig) Configured() bool { return c.SecretID != "" && c.SecretKey != "" }

// Configured reports whether credentials are present.
func (c LinknodeConfig) Configured() bool { return c.ClientID != "" && c.Secret != "" }

// SchedulerConfig controls the background sync loop.
type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Interval        time.Duration `yaml:"interval"`
	SyncEvery       time.Duration `yaml:"sync_every"`
	Workers         int           `yaml:"workers"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
}

// MatchingConfig holds match-suggestion tuning knobs.
type MatchingConfig struct {
	// AmountTolerance is the relative band (0.05 = 5%) around the
	// transaction amount inside which candidates are considered.
	AmountTolerance float64 `yaml:"amount_tolerance"`
	// DateWindowDays is how far a candidate date may drift before its
	// date component bottoms out.
	DateWindowDays int `yaml:"date_window_days"`
	// MinScore drops candidates scoring below it.
	MinScore float64 `yaml:"min_score"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Default returns a config with sensible defaults applied.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DatabasePath: "bankfeed.db",
		},
		API: APIConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			Interval:        5 * time.Minute,
			SyncEvery:       6 * time.Hour,
			Workers:         4,
			ProviderTimeout: 30 * time.Second,
		},
		Matching: MatchingConfig{
			AmountTolerance: 0.05,
			DateWindowDays:  60,
			MinScore:        0.2,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// Load reads configuration from a YAML file, applying defaults for
// anything the file omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrEnv loads config.yaml if present, otherwise falls back to
// environment variables.
func LoadOrEnv() *Config {
	for _, path := range []string{"config.yaml", "config.yml"} {
		if _, err := os.Stat(path); err == nil {
			if cfg, err := Load(path); err == nil {
				return cfg
			}
		}
	}
	return FromEnv()
}

// FromEnv builds a config from environment variables.
func FromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("BANKFEED_DB_PATH"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv("BANKFEED_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("BANKFEED_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("BANKFEED_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}

	cfg.Providers.Bankdata.SecretID = os.Getenv("BANKDATA_SECRET_ID")
	cfg.Providers.Bankdata.SecretKey = os.Getenv("BANKDATA_SECRET_KEY")
	cfg.Providers.Bankdata.BaseURL = os.Getenv("BANKDATA_BASE_URL")
	cfg.Providers.Bankdata.RedirectURL = os.Getenv("BANKDATA_REDIRECT_URL")
	cfg.Providers.Linknode.ClientID = os.Getenv("LINKNODE_CLIENT_ID")
	cfg.Providers.Linknode.Secret = os.Getenv("LINKNODE_SECRET")
	cfg.Providers.Linknode.BaseURL = os.Getenv("LINKNODE_BASE_URL")

	return cfg
}

// applyDefaults fills zero values left by a partial YAML file.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = d.Storage.DatabasePath
	}
	if c.API.Port == 0 {
		c.API.Port = d.API.Port
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = d.API.AllowedOrigins
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = d.Scheduler.Interval
	}
	if c.Scheduler.SyncEvery == 0 {
		c.Scheduler.SyncEvery = d.Scheduler.SyncEvery
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = d.Scheduler.Workers
	}
	if c.Scheduler.ProviderTimeout == 0 {
		c.Scheduler.ProviderTimeout = d.Scheduler.ProviderTimeout
	}
	if c.Matching.AmountTolerance == 0 {
		c.Matching.AmountTolerance = d.Matching.AmountTolerance
	}
	if c.Matching.DateWindowDays == 0 {
		c.Matching.DateWindowDays = d.Matching.DateWindowDays
	}
	if c.Matching.MinScore == 0 {
		c.Matching.MinScore = d.Matching.MinScore
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = d.Observability.Logging.Level
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = d.Observability.Logging.Format
	}
}
