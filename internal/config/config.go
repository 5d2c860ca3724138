package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all engine settings. Load reads a YAML file over the
// defaults and then lets environment variables override individual
// values.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

type EngineConfig struct {
	// Instruments each get an independent book and sequencer.
	Instruments []string `yaml:"instruments"`
	// IngressBuffer bounds the per-instrument command queue. Enqueue on
	// a full queue fails immediately rather than blocking.
	IngressBuffer int `yaml:"ingress_buffer"`
	// SnapshotDepth is the number of aggregated levels per side in
	// published snapshots.
	SnapshotDepth int `yaml:"snapshot_depth"`
	// ExpirySweepMS is the interval between GTD expiry sweeps.
	ExpirySweepMS int `yaml:"expiry_sweep_ms"`
	// TradeFeedBuffer sizes subscriber trade channels. A subscriber that
	// falls this far behind starts losing trades instead of stalling the
	// sequencer.
	TradeFeedBuffer int `yaml:"trade_feed_buffer"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ExpirySweep returns the sweep interval as a duration.
func (e EngineConfig) ExpirySweep() time.Duration {
	return time.Duration(e.ExpirySweepMS) * time.Millisecond
}

// Default returns a runnable configuration for a single instrument.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Instruments:     []string{"BTC-USD"},
			IngressBuffer:   1024,
			SnapshotDepth:   20,
			ExpirySweepMS:   250,
			TradeFeedBuffer: 256,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if len(c.Engine.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required")
	}
	seen := make(map[string]bool)
	for _, sym := range c.Engine.Instruments {
		if sym == "" {
			return fmt.Errorf("instrument symbols must be non-empty")
		}
		if seen[sym] {
			return fmt.Errorf("duplicate instrument %q", sym)
		}
		seen[sym] = true
	}
	if c.Engine.IngressBuffer <= 0 {
		return fmt.Errorf("ingress buffer must be positive")
	}
	if c.Engine.SnapshotDepth <= 0 {
		return fmt.Errorf("snapshot depth must be positive")
	}
	if c.Engine.ExpirySweepMS <= 0 {
		return fmt.Errorf("expiry sweep interval must be positive")
	}
	if c.Engine.TradeFeedBuffer <= 0 {
		return fmt.Errorf("trade feed buffer must be positive")
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// overrideWithEnv applies environment overrides where present.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("KESTREL_INSTRUMENTS"); v != "" {
		cfg.Engine.Instruments = strings.Split(v, ",")
	}
	if v := os.Getenv("KESTREL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("KESTREL_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
}
