//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for salespipe.
// Configuration is loaded from config files and CLI flags (no environment
// variables). CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Totalprice policies for the fact builder. The policy is pipeline-wide:
// either every fact row trusts the raw total, or every untrusted raw total
// is recomputed from quantity, unit price and discount.
const (
	PolicyRecompute = "recompute"
	PolicySource    = "source"
)

// Config holds all configuration for salespipe.
type Config struct {
	// Connection is the PostgreSQL connection string.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Pipeline holds configuration for the run subcommand.
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Seed holds configuration for the seed subcommand.
	Seed SeedConfig `mapstructure:"seed"`
}

// PipelineConfig holds configuration for a pipeline run.
type PipelineConfig struct {
	// DataDir is the directory holding the raw CSV extracts.
	DataDir string `mapstructure:"data_dir"`

	// Year is the calendar year the warehouse covers.
	Year int `mapstructure:"year"`

	// CountryCode selects the public-holiday feed (ISO 3166-1 alpha-2).
	CountryCode string `mapstructure:"country_code"`

	// HolidayFeedURL is the base URL of the public-holiday feed.
	// The year and country code are appended as path segments.
	HolidayFeedURL string `mapstructure:"holiday_feed_url"`

	// SalesBatchSize is the number of sales rows loaded per batch.
	// Batching bounds peak memory; it does not add concurrency.
	SalesBatchSize int `mapstructure:"sales_batch_size"`

	// TotalPricePolicy is "recompute" or "source".
	TotalPricePolicy string `mapstructure:"totalprice_policy"`

	// ClearStaging truncates the staging namespace before extraction.
	ClearStaging bool `mapstructure:"clear_staging"`

	// SkipExtract reuses the raw tables already present in staging
	// instead of reloading the CSV extracts and the holiday feed.
	SkipExtract bool `mapstructure:"skip_extract"`
}

// SeedConfig holds configuration for demo CSV generation.
type SeedConfig struct {
	// OutDir is where the generated CSV files are written.
	OutDir string `mapstructure:"out_dir"`

	// SalesRows is the number of sales transactions to generate.
	SalesRows int `mapstructure:"sales_rows"`

	// RandomSeed makes generation reproducible when non-zero.
	RandomSeed uint64 `mapstructure:"random_seed"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Pipeline: PipelineConfig{
			DataDir:          "./data/raw",
			Year:             2018,
			CountryCode:      "US",
			HolidayFeedURL:   "https://date.nager.at/api/v3/PublicHolidays",
			SalesBatchSize:   100000,
			TotalPricePolicy: PolicyRecompute,
		},
		Seed: SeedConfig{
			OutDir:    "./data/raw",
			SalesRows: 100000,
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./salespipe.yaml
// 3. ~/.config/salespipe/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Set config name and type
	v.SetConfigName("salespipe")
	v.SetConfigType("yaml")

	// Add config paths
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "salespipe"))
	}

	// Use specific config file if provided
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Start with defaults
	cfg := DefaultConfig()

	// Unmarshal config file values
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("connection string is required")
	}
	return nil
}

// ValidateRun checks configuration required for the run command.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Pipeline.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Pipeline.Year < 1900 || c.Pipeline.Year > 2100 {
		return fmt.Errorf("year must be between 1900 and 2100")
	}
	if len(c.Pipeline.CountryCode) != 2 {
		return fmt.Errorf("country_code must be a two-letter ISO code")
	}
	if c.Pipeline.SalesBatchSize < 1 {
		return fmt.Errorf("sales_batch_size must be at least 1")
	}
	switch c.Pipeline.TotalPricePolicy {
	case PolicyRecompute, PolicySource:
	default:
		return fmt.Errorf("totalprice_policy must be '%s' or '%s'",
			PolicyRecompute, PolicySource)
	}
	return nil
}

// ValidateSeed checks configuration required for the seed command.
func (c *Config) ValidateSeed() error {
	if c.Seed.OutDir == "" {
		return fmt.Errorf("out_dir is required for seed")
	}
	if c.Seed.SalesRows < 1 {
		return fmt.Errorf("sales_rows must be at least 1")
	}
	return nil
}
