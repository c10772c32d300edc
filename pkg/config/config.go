// Package config loads the optional TOML configuration and derives the
// on-disk paths shared by every invocation. A missing config file means
// defaults; a broken one is an error the CLI reports on stderr while
// still rendering from defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/wattline/wattline/pkg/energy"
	"github.com/wattline/wattline/pkg/quota"
)

const (
	defaultConfigFileName = "wattline.toml"

	defaultLockTimeoutMS   = 3000
	defaultQuotaTTLSeconds = 300
)

type Config struct {
	// DataDir holds the store, ledger, quota cache, and debug capture.
	DataDir       string       `toml:"data_dir,omitempty"`
	LockTimeoutMS int          `toml:"lock_timeout_ms,omitempty"`
	Quota         QuotaConfig  `toml:"quota"`
	Energy        EnergyConfig `toml:"energy"`
}

type QuotaConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint,omitempty"`
	BetaHeader     string   `toml:"beta_header,omitempty"`
	TTLSeconds     int      `toml:"ttl_seconds,omitempty"`
	TimeoutSeconds int      `toml:"timeout_seconds,omitempty"`
	// TokenCommand is executed to obtain the bearer token, e.g.
	// ["security", "find-generic-password", "-s", "…", "-w"] on macOS.
	TokenCommand []string `toml:"token_command,omitempty"`
}

// EnergyConfig overrides the built-in mWh-per-1k-token estimates.
// Zero values keep the defaults.
type EnergyConfig struct {
	FreshInputPer1K float64 `toml:"fresh_input_per_1k,omitempty"`
	OutputPer1K     float64 `toml:"output_per_1k,omitempty"`
	CacheReadPer1K  float64 `toml:"cache_read_per_1k,omitempty"`
	CacheWritePer1K float64 `toml:"cache_write_per_1k,omitempty"`
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", "wattline", defaultConfigFileName)
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "wattline-data"
	}
	return filepath.Join(home, ".cache", "wattline")
}

func Default() Config {
	return Config{
		DataDir:       DefaultDataDir(),
		LockTimeoutMS: defaultLockTimeoutMS,
		Quota: QuotaConfig{
			Enabled:    true,
			Endpoint:   quota.DefaultEndpoint,
			BetaHeader: quota.DefaultBetaHeader,
			TTLSeconds: defaultQuotaTTLSeconds,
		},
	}
}

// Load reads the config at path, layering it over defaults. A missing
// file yields pure defaults with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if cfg.LockTimeoutMS <= 0 {
		cfg.LockTimeoutMS = defaultLockTimeoutMS
	}
	if cfg.Quota.TTLSeconds <= 0 {
		cfg.Quota.TTLSeconds = defaultQuotaTTLSeconds
	}
	if cfg.Quota.Endpoint == "" {
		cfg.Quota.Endpoint = quota.DefaultEndpoint
	}
	if cfg.Quota.BetaHeader == "" {
		cfg.Quota.BetaHeader = quota.DefaultBetaHeader
	}
	return cfg, nil
}

func (c Config) StorePath() string      { return filepath.Join(c.DataDir, "daily.json") }
func (c Config) HistoryPath() string    { return filepath.Join(c.DataDir, "history.jsonl") }
func (c Config) QuotaCachePath() string { return filepath.Join(c.DataDir, "quota-cache.json") }
func (c Config) DebugLogPath() string   { return filepath.Join(c.DataDir, "debug.jsonl") }

func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

func (c Config) QuotaTTL() time.Duration {
	return time.Duration(c.Quota.TTLSeconds) * time.Second
}

func (c Config) QuotaTimeout() time.Duration {
	if c.Quota.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Quota.TimeoutSeconds) * time.Second
}

// EnergyConstants folds configured overrides over the defaults.
func (c Config) EnergyConstants() energy.Constants {
	out := energy.Defaults()
	if c.Energy.FreshInputPer1K > 0 {
		out.FreshInput = c.Energy.FreshInputPer1K
	}
	if c.Energy.OutputPer1K > 0 {
		out.Output = c.Energy.OutputPer1K
	}
	if c.Energy.CacheReadPer1K > 0 {
		out.CacheRead = c.Energy.CacheReadPer1K
	}
	if c.Energy.CacheWritePer1K > 0 {
		out.CacheWrite = c.Energy.CacheWritePer1K
	}
	return out
}
