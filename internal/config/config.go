package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/dealerflow/structure-pipeline/internal/gex"
	"github.com/dealerflow/structure-pipeline/internal/wyckoff"
)

type Config struct {
	Symbols []string       `mapstructure:"symbols"`
	Feed    FeedConfig     `mapstructure:"feed"`
	Store   StoreConfig    `mapstructure:"store"`
	Run     RunConfig      `mapstructure:"run"`
	Gex     gex.Config     `mapstructure:"gex"`
	Wyckoff wyckoff.Config `mapstructure:"wyckoff"`
	Logging LoggingConfig  `mapstructure:"logging"`
}

type FeedConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryDelaySec int    `mapstructure:"retry_delay_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type RunConfig struct {
	Workers          int `mapstructure:"workers"`
	SymbolTimeoutSec int `mapstructure:"symbol_timeout_sec"`
	LookbackDays     int `mapstructure:"lookback_days"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

// Default returns the full default configuration, including the documented
// calculator and detector defaults.
func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			BaseURL:       "https://api.dealerflow.dev",
			TimeoutSec:    60,
			RetryCount:    3,
			RetryDelaySec: 5,
			RatePerSecond: 2,
		},
		Store: StoreConfig{
			Path: "data/structure.db",
		},
		Run: RunConfig{
			Workers:          3,
			SymbolTimeoutSec: 60,
			LookbackDays:     90,
		},
		Gex:     gex.DefaultConfig(),
		Wyckoff: wyckoff.DefaultConfig(),
		Logging: LoggingConfig{
			Enabled:   true,
			Directory: "logs",
			Level:     "info",
		},
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Environment variable support
	v.SetEnvPrefix("STRUCTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("feed.api_key", "STRUCTURE_API_KEY")
	_ = v.BindEnv("feed.base_url", "STRUCTURE_FEED_BASE_URL")
	_ = v.BindEnv("store.path", "STRUCTURE_STORE_PATH")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Unmarshal over the defaults so absent keys keep their documented
	// values.
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Feed.APIKey == "" {
		return fmt.Errorf("feed api_key is required (set STRUCTURE_API_KEY env var)")
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("run workers must be >= 1")
	}
	if c.Run.LookbackDays < c.Wyckoff.MinLookback {
		return fmt.Errorf("run lookback_days (%d) must cover the detector minimum lookback (%d)",
			c.Run.LookbackDays, c.Wyckoff.MinLookback)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	return ValidateSymbols(c.Symbols)
}
