// Package config loads service configuration from YAML.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	// DBPath is the SQLite ledger file.
	DBPath string `yaml:"db_path"`

	// MinAppealCapital is the social-capital floor for appeals.
	MinAppealCapital int `yaml:"min_appeal_capital"`

	// MaxGapDays bounds retroactive reconciliation.
	MaxGapDays int `yaml:"max_gap_days"`

	// FreezeTokenCap bounds the freeze-token balance.
	FreezeTokenCap int `yaml:"freeze_token_cap"`

	// AppendRetries is how many times a transient ledger append failure
	// is retried after the first attempt.
	AppendRetries int `yaml:"append_retries"`

	// RetryIntervalMS is the pause between append attempts.
	RetryIntervalMS int `yaml:"retry_interval_ms"`

	Log LogConfig `yaml:"log"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DBPath:           "cadence.db",
		MinAppealCapital: 2,
		MaxGapDays:       365,
		FreezeTokenCap:   3,
		AppendRetries:    2,
		RetryIntervalMS:  50,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file over the defaults. Unknown fields are
// rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.MaxGapDays <= 0 {
		return fmt.Errorf("max_gap_days must be positive")
	}
	if c.FreezeTokenCap < 0 {
		return fmt.Errorf("freeze_token_cap must not be negative")
	}
	if c.MinAppealCapital < 0 {
		return fmt.Errorf("min_appeal_capital must not be negative")
	}
	if c.AppendRetries < 0 {
		return fmt.Errorf("append_retries must not be negative")
	}
	if c.RetryIntervalMS <= 0 {
		return fmt.Errorf("retry_interval_ms must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}
	return nil
}
