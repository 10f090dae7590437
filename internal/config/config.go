// Package config loads the YAML configuration with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pagepulse/pagepulse/internal/browser"
	"github.com/pagepulse/pagepulse/internal/engine"
	"github.com/pagepulse/pagepulse/internal/profile"
)

// Config holds all pagepulse configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BrowserConfig configures the headless Chrome lifecycle.
type BrowserConfig struct {
	Bin                 string `yaml:"bin"`
	Headless            bool   `yaml:"headless"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	IdleTimeoutMs       int    `yaml:"idle_timeout_ms"`
	SettleTimeoutMs     int    `yaml:"settle_timeout_ms"`
	StabilizeIntervalMs int    `yaml:"stabilize_interval_ms"`
	StabilizeMaxSamples int    `yaml:"stabilize_max_samples"`
}

// AnalysisConfig configures analysis defaults.
type AnalysisConfig struct {
	DefaultDevice    string `yaml:"default_device"`
	DefaultNetwork   string `yaml:"default_network"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StoreConfig configures report persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	bc := browser.DefaultConfig()
	return &Config{
		Browser: BrowserConfig{
			Headless:            bc.Headless,
			NavigationTimeoutMs: bc.NavigationTimeoutMs,
			IdleTimeoutMs:       bc.IdleTimeoutMs,
			SettleTimeoutMs:     bc.SettleTimeoutMs,
			StabilizeIntervalMs: bc.StabilizeIntervalMs,
			StabilizeMaxSamples: bc.StabilizeMaxSamples,
		},
		Analysis: AnalysisConfig{
			DefaultDevice:    profile.DefaultDevice,
			DefaultNetwork:   profile.DefaultNetwork,
			RequestTimeoutMs: 90000,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
		},
		Store: StoreConfig{
			DatabasePath: "data/pagepulse.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if bin := os.Getenv("PAGEPULSE_CHROME_BIN"); bin != "" {
		c.Browser.Bin = bin
	}
	if v := os.Getenv("PAGEPULSE_HEADLESS"); v != "" {
		if headless, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = headless
		}
	}
	if addr := os.Getenv("PAGEPULSE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("PAGEPULSE_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if level := os.Getenv("PAGEPULSE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// EngineConfig converts the file representation into the engine's config.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Browser: browser.Config{
			Bin:                 c.Browser.Bin,
			Headless:            c.Browser.Headless,
			NavigationTimeoutMs: c.Browser.NavigationTimeoutMs,
			IdleTimeoutMs:       c.Browser.IdleTimeoutMs,
			SettleTimeoutMs:     c.Browser.SettleTimeoutMs,
			StabilizeIntervalMs: c.Browser.StabilizeIntervalMs,
			StabilizeMaxSamples: c.Browser.StabilizeMaxSamples,
		},
		RequestTimeoutMs: c.Analysis.RequestTimeoutMs,
	}
}

// ShutdownTimeout returns the server shutdown grace period as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

var validLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	valid := false
	for _, l := range validLevels {
		if c.Logging.Level == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, validLevels)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}
	if !profile.KnownDevice(c.Analysis.DefaultDevice) {
		return fmt.Errorf("unknown default device: %s", c.Analysis.DefaultDevice)
	}
	if !profile.KnownNetwork(c.Analysis.DefaultNetwork) {
		return fmt.Errorf("unknown default network: %s", c.Analysis.DefaultNetwork)
	}
	if c.Analysis.RequestTimeoutMs < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	return nil
}
