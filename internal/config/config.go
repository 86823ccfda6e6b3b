// Package config loads service configuration from a YAML file. Flags in
// main override anything set here; platform delivery settings only live
// here since they don't fit flags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"crosspost/internal/domain"
)

// Duration parses YAML scalars like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

type PlatformConfig struct {
	Endpoint   string   `yaml:"endpoint"`
	RatePerSec float64  `yaml:"rate_per_sec"`
	Burst      int      `yaml:"burst"`
	Timeout    Duration `yaml:"timeout"`
}

type Config struct {
	Addr             string                    `yaml:"addr"`
	DBPath           string                    `yaml:"db"`
	SweepInterval    Duration                  `yaml:"sweep_interval"`
	AccountCacheSize int                       `yaml:"account_cache_size"`
	Debug            bool                      `yaml:"debug"`
	Platforms        map[string]PlatformConfig `yaml:"platforms"`
}

func Default() *Config {
	return &Config{
		Addr:             ":8080",
		DBPath:           "crosspost.db",
		SweepInterval:    Duration(30 * time.Second),
		AccountCacheSize: 256,
		Platforms:        map[string]PlatformConfig{},
	}
}

// Load reads and validates the YAML file at path. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	for name, pc := range c.Platforms {
		if !domain.Platform(name).Valid() {
			return fmt.Errorf("unknown platform %q in config", name)
		}
		if pc.Endpoint == "" {
			return fmt.Errorf("platform %q: endpoint is required", name)
		}
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	return nil
}
