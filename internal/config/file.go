// Package config holds the replay configuration, read from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level replay configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Pages   []PageConfig  `yaml:"pages"`
	RUM     RUMConfig     `yaml:"rum"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	Store   StoreConfig   `yaml:"store"`
	HTTP    HTTPConfig    `yaml:"http"`
	MCP     MCPConfig     `yaml:"mcp"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`            // ws:// of a running Chrome; empty launches one
	ResourceBlocking []string `yaml:"resource_blocking"` // images | fonts | media | stylesheets
	Stealth          string   `yaml:"stealth"`           // headless | headful

	// XvfbDisplay is the virtual display for headful mode without $DISPLAY.
	XvfbDisplay     string        `yaml:"xvfb_display"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	MemoryLimit     int64         `yaml:"memory_limit"` // bytes of JS heap; 0 disables
}

// FetchConfig controls the HTTP source.
type FetchConfig struct {
	Rate      float64 `yaml:"rate"` // requests per second across all pages; 0 is unlimited
	Burst     int     `yaml:"burst"`
	UserAgent string  `yaml:"user_agent"`
	// AllowPrivate permits loopback, link-local and private addresses.
	AllowPrivate bool `yaml:"allow_private"`
}

// PageConfig defines a page to record.
type PageConfig struct {
	ID     string `yaml:"id"`
	URL    string `yaml:"url"`
	Source string `yaml:"source"` // browser | http
	// StealthLevel is 0, 1, 2 or auto. Browser pages only.
	StealthLevel string        `yaml:"stealth_level"`
	Interval     time.Duration `yaml:"interval"`
	Privacy      string        `yaml:"privacy"` // allow | mask
	// FullSnapshotEvery is the number of ticks between full snapshots.
	FullSnapshotEvery int    `yaml:"full_snapshot_every"`
	SessionID         string `yaml:"session_id"`
}

// RUMConfig is the monitoring context stamped on every snapshot.
type RUMConfig struct {
	ApplicationID    string        `yaml:"application_id"`
	ServerTimeOffset time.Duration `yaml:"server_time_offset"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook | sqlite
	URL     string `yaml:"url"`  // webhook
	Retries int    `yaml:"retries"`
}

// StoreConfig locates the SQLite database used by the sqlite sink and the
// HTTP API.
type StoreConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"` // 0 keeps everything
}

// HTTPConfig enables the HTTP API when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MCPConfig enables the MCP tool server on stdio.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoadFile reads a YAML configuration file, applies defaults and validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.MemoryLimit == 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Fetch.Rate > 0 && c.Fetch.Burst <= 0 {
		c.Fetch.Burst = 1
	}
	for i := range c.Pages {
		c.Pages[i].ApplyDefaults()
	}
	for i := range c.Sinks {
		if c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
}

// ApplyDefaults fills unset page fields.
func (p *PageConfig) ApplyDefaults() {
	if p.Source == "" {
		p.Source = "browser"
	}
	if p.StealthLevel == "" {
		p.StealthLevel = "auto"
	}
	if p.Interval <= 0 {
		p.Interval = time.Second
	}
	if p.Privacy == "" {
		p.Privacy = "mask"
	}
	if p.FullSnapshotEvery <= 0 {
		p.FullSnapshotEvery = 30
	}
}

// Validate reports every configuration error at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Fetch.Rate < 0 {
		errs = append(errs, fmt.Errorf("config: fetch.rate must not be negative"))
	}
	seen := map[string]bool{}
	for i, p := range c.Pages {
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Errorf("config: pages[%d]: id is required", i))
		case seen[p.ID]:
			errs = append(errs, fmt.Errorf("config: pages[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("config: pages[%d]: url is required", i))
		}
		if p.Source != "browser" && p.Source != "http" {
			errs = append(errs, fmt.Errorf("config: pages[%d]: unknown source %q", i, p.Source))
		}
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("config: sinks[%d]: webhook needs url", i))
			}
		case "sqlite":
			if c.Store.Path == "" {
				errs = append(errs, fmt.Errorf("config: sinks[%d]: sqlite sink needs store.path", i))
			}
		default:
			errs = append(errs, fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	return errors.Join(errs...)
}
