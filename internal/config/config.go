// Package config loads and persists the JSON settings file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the persisted application configuration. Missing fields keep
// their defaults when loading.
type Config struct {
	// DataPath overrides the usage data root. Empty means auto-detect.
	DataPath string `json:"dataPath,omitempty"`
	// PlanType selects the quota tier: pro, max5 or max20.
	PlanType string `json:"planType"`
	// RefreshIntervalSeconds is the background refresh cadence.
	RefreshIntervalSeconds int `json:"refreshIntervalSeconds"`
	// CollectorPort is the telemetry ingest listen port.
	CollectorPort int `json:"collectorPort"`
	// TelemetryDBPath overrides the telemetry store location. Empty puts
	// it next to the config file.
	TelemetryDBPath string `json:"telemetryDbPath,omitempty"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		PlanType:               "pro",
		RefreshIntervalSeconds: 5,
		CollectorPort:          4318,
	}
}

// Dir is the directory holding the config file.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve config dir: %w", err)
	}
	return filepath.Join(base, "claudeusage"), nil
}

// DefaultPath is the location of the config file.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from its default location. A missing file yields
// the defaults.
func Load() (Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config from an explicit path, merging the file's
// values over the defaults and clamping out-of-range settings.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	switch c.PlanType {
	case "pro", "max5", "max20":
	default:
		c.PlanType = "pro"
	}
	if c.RefreshIntervalSeconds < 1 {
		c.RefreshIntervalSeconds = 1
	}
	if c.RefreshIntervalSeconds > 3600 {
		c.RefreshIntervalSeconds = 3600
	}
	if c.CollectorPort < 1 || c.CollectorPort > 65535 {
		c.CollectorPort = 4318
	}
}

// Save writes the config to its default location.
func (c Config) Save() error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config as indented JSON, creating parent directories.
func (c Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
