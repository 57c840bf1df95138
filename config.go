package replay

import (
	"github.com/hazyhaar/replay/internal/config"
)

// Config is the top-level replay configuration.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// FetchConfig controls the HTTP source.
type FetchConfig = config.FetchConfig

// PageConfig defines a page to record.
type PageConfig = config.PageConfig

// RUMConfig is the monitoring context stamped on snapshots.
type RUMConfig = config.RUMConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// StoreConfig locates the snapshot database.
type StoreConfig = config.StoreConfig

// LoadConfigFile reads and validates a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig decodes and validates YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}

// DefaultConfig is a configuration with every default applied and no pages.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}
