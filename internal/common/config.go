// Package common provides shared utilities for the portfolio manager
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the portfolio manager
type Config struct {
	Environment     string        `toml:"environment"`
	DisplayCurrency string        `toml:"display_currency"` // Default display currency for portfolio views (ISO code, default "USD")
	Server          ServerConfig  `toml:"server"`
	Storage         StorageConfig `toml:"storage"`
	Clients         ClientsConfig `toml:"clients"`
	Search          SearchConfig  `toml:"search"`
	Logging         LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds cache store configuration.
// Backend selects the durable store for cached reference data:
// "badger" (default, embedded), "surrealdb", or "memory" (non-durable).
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Path      string `toml:"path"`    // BadgerDB data directory
	Address   string `toml:"address"` // SurrealDB RPC address (e.g. ws://localhost:8000/rpc)
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	MarketData MarketDataConfig `toml:"marketdata"`
}

// MarketDataConfig holds upstream market-data collaborator configuration
type MarketDataConfig struct {
	BaseURL       string `toml:"base_url"`
	RateLimit     int    `toml:"rate_limit"`
	Timeout       string `toml:"timeout"`
	SessionSecret string `toml:"session_secret"` // HS256 secret for upstream session tokens
	SessionUser   string `toml:"session_user"`   // subject claim presented to the upstream
	SessionExpiry string `toml:"session_expiry"` // duration string, default "15m"
}

// GetTimeout parses and returns the timeout duration
func (c *MarketDataConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetSessionExpiry parses and returns the session token lifetime
func (c *MarketDataConfig) GetSessionExpiry() time.Duration {
	d, err := time.ParseDuration(c.SessionExpiry)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// SearchConfig holds security search configuration
type SearchConfig struct {
	DebounceMS int `toml:"debounce_ms"`
}

// DefaultSearchDebounce is the quiet period a search query must
// survive unrevised before it executes
const DefaultSearchDebounce = 300 * time.Millisecond

// Debounce returns the search debounce window
func (c *SearchConfig) Debounce() time.Duration {
	if c.DebounceMS <= 0 {
		return DefaultSearchDebounce
	}
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment:     "development",
		DisplayCurrency: "USD",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend:   "badger",
			Path:      "data/cache",
			Address:   "ws://localhost:8000/rpc",
			Username:  "root",
			Password:  "root",
			Namespace: "portman",
			Database:  "cache",
		},
		Clients: ClientsConfig{
			MarketData: MarketDataConfig{
				BaseURL:       "http://localhost:5000",
				RateLimit:     10,
				Timeout:       "30s",
				SessionUser:   "portfolio-manager",
				SessionExpiry: "15m",
			},
		},
		Search: SearchConfig{
			DebounceMS: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	validateDisplayCurrency(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PORTMAN_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("PORTMAN_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("PORTMAN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("PORTMAN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if backend := os.Getenv("PORTMAN_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}

	if path := os.Getenv("PORTMAN_DATA_PATH"); path != "" {
		config.Storage.Path = path
	}

	if addr := os.Getenv("PORTMAN_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}

	if url := os.Getenv("PORTMAN_MARKET_DATA_URL"); url != "" {
		config.Clients.MarketData.BaseURL = url
	}

	if secret := os.Getenv("PORTMAN_SESSION_SECRET"); secret != "" {
		config.Clients.MarketData.SessionSecret = secret
	}

	if dc := os.Getenv("PORTMAN_DISPLAY_CURRENCY"); dc != "" {
		config.DisplayCurrency = strings.ToUpper(dc)
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// validateDisplayCurrency normalizes DisplayCurrency to an upper-case ISO-like
// code, defaulting to "USD" when unset.
func validateDisplayCurrency(config *Config) {
	dc := strings.ToUpper(strings.TrimSpace(config.DisplayCurrency))
	if dc == "" {
		dc = "USD"
	}
	config.DisplayCurrency = dc
}
