package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server Server `yaml:"server"`
	Engine Engine `yaml:"engine"`
	Cache  Cache  `yaml:"cache"`
	Rules  []Rule `yaml:"rules"`
}

// Server contains the daemon's listener configuration
type Server struct {
	// ProxyPort is the port the intercepting proxy listens on
	ProxyPort int `yaml:"proxy_port"`
	// AdminPort is the port for the command/event endpoint
	AdminPort int `yaml:"admin_port"`
	// LogLevel is a logrus level name ("debug", "info", ...)
	LogLevel string `yaml:"log_level"`
}

// Engine contains engine-wide settings
type Engine struct {
	// Version tags every cache partition; partitions recorded under a
	// different version are evicted at activation
	Version string `yaml:"version"`
	// StorePath is the bolt database file holding the offline queue and
	// partition metadata
	StorePath string `yaml:"store_path"`
	// FetchTimeout bounds every network attempt (foreground and background)
	FetchTimeout string `yaml:"fetch_timeout"`
	// MaxRetries is the replay budget per queued operation
	MaxRetries int `yaml:"max_retries"`
	// SyncInterval is the period of the background sync trigger; empty
	// disables periodic sync
	SyncInterval string `yaml:"sync_interval"`
	// ProbeURL is polled to detect connectivity transitions
	ProbeURL string `yaml:"probe_url"`
	// ProbeInterval is the connectivity poll period
	ProbeInterval string `yaml:"probe_interval"`
	// APIPrefixes classify requests as API traffic
	APIPrefixes []string `yaml:"api_prefixes"`
	// Prewarm lists URLs fetched into the static partition at initialize
	Prewarm []string `yaml:"prewarm"`
}

// Cache contains cache store configuration
type Cache struct {
	Folder string `yaml:"folder"`
}

// Rule defines a caching policy rule. Rules are evaluated in order of
// appearance; the first match wins.
type Rule struct {
	// Pattern is a path prefix the request path must start with
	Pattern string `yaml:"pattern"`
	// Query, when set, must appear as a substring of the raw query string
	Query string `yaml:"query,omitempty"`
	// Strategy is one of cache_first, network_first, stale_while_revalidate,
	// network_only, cache_only
	Strategy string `yaml:"strategy"`
	// TTL is the entry lifetime, e.g. "10m"; empty means cache until evicted
	TTL string `yaml:"ttl,omitempty"`
	// Partition names the cache partition entries are stored under
	Partition string `yaml:"partition"`
}

var validStrategies = map[string]bool{
	"cache_first":            true,
	"network_first":          true,
	"stale_while_revalidate": true,
	"network_only":           true,
	"cache_only":             true,
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Set defaults
	if config.Server.ProxyPort == 0 {
		config.Server.ProxyPort = 8080
	}
	if config.Server.AdminPort == 0 {
		config.Server.AdminPort = 8081
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = "info"
	}
	if config.Engine.Version == "" {
		config.Engine.Version = "v1"
	}
	if config.Engine.FetchTimeout == "" {
		config.Engine.FetchTimeout = "10s"
	}
	if config.Engine.MaxRetries == 0 {
		config.Engine.MaxRetries = 5
	}
	if config.Engine.ProbeInterval == "" {
		config.Engine.ProbeInterval = "15s"
	}
	if len(config.Engine.APIPrefixes) == 0 {
		config.Engine.APIPrefixes = []string{"/api/"}
	}

	return &config, nil
}

// GetFetchTimeout parses and returns the network attempt timeout
func (c *Config) GetFetchTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Engine.FetchTimeout)
}

// GetSyncInterval parses and returns the periodic sync interval.
// Returns zero when periodic sync is disabled.
func (c *Config) GetSyncInterval() (time.Duration, error) {
	if c.Engine.SyncInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Engine.SyncInterval)
}

// GetProbeInterval parses and returns the connectivity poll period
func (c *Config) GetProbeInterval() (time.Duration, error) {
	return time.ParseDuration(c.Engine.ProbeInterval)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ProxyPort <= 0 || c.Server.ProxyPort > 65535 {
		return fmt.Errorf("invalid proxy port: %d", c.Server.ProxyPort)
	}

	if c.Server.AdminPort <= 0 || c.Server.AdminPort > 65535 {
		return fmt.Errorf("invalid admin port: %d", c.Server.AdminPort)
	}

	if c.Cache.Folder == "" {
		return fmt.Errorf("cache folder is required")
	}

	if c.Engine.StorePath == "" {
		return fmt.Errorf("engine store path is required")
	}

	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got: %d", c.Engine.MaxRetries)
	}

	if _, err := c.GetFetchTimeout(); err != nil {
		return fmt.Errorf("invalid fetch timeout: %w", err)
	}

	if _, err := c.GetSyncInterval(); err != nil {
		return fmt.Errorf("invalid sync interval: %w", err)
	}

	for i, rule := range c.Rules {
		if rule.Pattern == "" {
			return fmt.Errorf("rule %d: pattern is required", i)
		}
		if rule.Partition == "" {
			return fmt.Errorf("rule %d: partition is required", i)
		}
		if !validStrategies[rule.Strategy] {
			return fmt.Errorf("rule %d: unknown strategy: %s", i, rule.Strategy)
		}
		if rule.TTL != "" {
			if _, err := time.ParseDuration(rule.TTL); err != nil {
				return fmt.Errorf("rule %d: invalid TTL: %w", i, err)
			}
		}
	}

	return nil
}
