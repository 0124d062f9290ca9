// Package config handles configuration loading and validation for the
// coal-miner client.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the miner.
type Config struct {
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Identity    IdentityConfig    `mapstructure:"identity"`
	Mining      MiningConfig      `mapstructure:"mining"`
	Journal     JournalConfig     `mapstructure:"journal"`
	API         APIConfig         `mapstructure:"api"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	NewRelic    NewRelicConfig    `mapstructure:"newrelic"`
	Profiling   ProfilingConfig   `mapstructure:"profiling"`
	Log         LogConfig         `mapstructure:"log"`
}

// CoordinatorConfig addresses the pool/coordinator this client dials.
type CoordinatorConfig struct {
	Base     string        `mapstructure:"base"`
	Unsecure bool          `mapstructure:"unsecure"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// IdentityConfig selects Owner vs Delegated mode (spec.md §4.6). When
// PrivateKeyHex is empty the session runs Delegated: frames are
// unsigned and only PublicKeyHex is used for the handshake.
type IdentityConfig struct {
	PublicKeyHex  string `mapstructure:"public_key"`
	PrivateKeyHex string `mapstructure:"private_key"`
}

// MiningConfig controls the engine's thread count and buffer.
type MiningConfig struct {
	DesiredThreads int           `mapstructure:"desired_threads"`
	CutoffBuffer   time.Duration `mapstructure:"cutoff_buffer"`
}

// JournalConfig points at the local sqlite earnings store.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// APIConfig defines the optional local read-only status API (C9).
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// WebhookConfig defines the optional round-result notifier (C11).
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Kind    string `mapstructure:"kind"` // "discord" or "telegram"
}

// NewRelicConfig defines the optional round telemetry (C10).
type NewRelicConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	LicenseKey string `mapstructure:"license_key"`
	AppName    string `mapstructure:"app_name"`
}

// ProfilingConfig defines the optional pprof debug server (C12).
type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/coal-miner")
	}

	v.SetEnvPrefix("COAL_MINER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("coordinator.base", "pool.tos.network")
	v.SetDefault("coordinator.unsecure", false)
	v.SetDefault("coordinator.timeout", "10s")

	v.SetDefault("mining.desired_threads", 0) // 0 = all logical cores
	v.SetDefault("mining.cutoff_buffer", "2s")

	v.SetDefault("journal.path", "app_db_merged.db3")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.bind", "127.0.0.1:7777")

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.kind", "discord")

	v.SetDefault("newrelic.enabled", false)
	v.SetDefault("newrelic.app_name", "coal-miner")

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.bind", "127.0.0.1:6060")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Coordinator.Base == "" {
		return fmt.Errorf("coordinator.base is required")
	}

	if c.Identity.PublicKeyHex == "" && c.Identity.PrivateKeyHex == "" {
		return fmt.Errorf("identity.public_key or identity.private_key is required")
	}

	if c.Mining.DesiredThreads < 0 {
		return fmt.Errorf("mining.desired_threads must be >= 0")
	}

	if c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required")
	}

	if c.API.Enabled && c.API.Bind == "" {
		return fmt.Errorf("api.bind is required when api is enabled")
	}

	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required when webhook is enabled")
	}

	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		return fmt.Errorf("newrelic.license_key is required when newrelic is enabled")
	}

	return nil
}

// Owner reports whether the configured identity signs its own frames.
func (c *Config) Owner() bool {
	return c.Identity.PrivateKeyHex != ""
}
