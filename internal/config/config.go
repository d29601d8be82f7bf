// Package config provides provider configuration management with hot-reload
// support. Configuration is loaded once at startup from a YAML file plus
// per-provider environment overrides, validated, and never mutated afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete orchestration-layer configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Providers []ProviderConfig `yaml:"providers"`
	Cache     CacheConfig      `yaml:"cache"`
	Redis     RedisConfig      `yaml:"redis"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings for the introspection API.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// ProviderConfig defines a single sports-data provider. It is immutable
// after load.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`

	// APIKeys is the credential pool, highest priority first.
	APIKeys []string `yaml:"api_keys"`
	// KeyInHeader carries the API key as a request header named KeyParam
	// when true, otherwise as a query parameter named KeyParam.
	KeyInHeader bool   `yaml:"key_in_header"`
	KeyParam    string `yaml:"key_param"`

	// Sliding-window quotas. Zero disables the corresponding window.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour"`
	RequestsPerDay    int `yaml:"requests_per_day"`

	// Per-key quotas. Zero disables the corresponding limit.
	KeyRequestsPerHour int `yaml:"key_requests_per_hour"`
	KeyRequestsPerDay  int `yaml:"key_requests_per_day"`

	Cooldown   time.Duration `yaml:"cooldown"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`

	CircuitBreakerThreshold int           `yaml:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `yaml:"circuit_breaker_timeout"`

	// Sports and data types this provider can serve, used to build the
	// fallback ordering.
	Sports    []string `yaml:"sports"`
	DataTypes []string `yaml:"data_types"`
	// Priority orders providers serving the same (sport, dataType);
	// lower values are tried first.
	Priority int `yaml:"priority"`
}

// CacheConfig controls the response cache and request deduplication.
type CacheConfig struct {
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RedisConfig enables the shared Redis window store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SchedulerConfig controls the background refresh jobs.
type SchedulerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	TeamsInterval    time.Duration `yaml:"teams_interval"`
	ScheduleInterval time.Duration `yaml:"schedule_interval"`
	OddsInterval     time.Duration `yaml:"odds_interval"`
	Sports           []string      `yaml:"sports"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8090,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL:    5 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Scheduler: SchedulerConfig{
			Enabled:          false,
			TeamsInterval:    24 * time.Hour,
			ScheduleInterval: time.Hour,
			OddsInterval:     15 * time.Minute,
		},
	}
}

// DefaultProviderConfig returns the per-provider defaults applied before
// YAML values and environment overrides.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		KeyParam:                "apiKey",
		Cooldown:                time.Second,
		RetryDelay:              2 * time.Second,
		Timeout:                 15 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   5 * time.Minute,
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded, then
// per-provider environment overrides are applied (see ApplyEnvOverrides).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for i := range cfg.Providers {
		applyProviderDefaults(&cfg.Providers[i])
		ApplyEnvOverrides(&cfg.Providers[i], os.LookupEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func applyProviderDefaults(p *ProviderConfig) {
	def := DefaultProviderConfig()
	if p.KeyParam == "" {
		p.KeyParam = def.KeyParam
	}
	if p.Cooldown == 0 {
		p.Cooldown = def.Cooldown
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = def.RetryDelay
	}
	if p.Timeout == 0 {
		p.Timeout = def.Timeout
	}
	if p.CircuitBreakerThreshold == 0 {
		p.CircuitBreakerThreshold = def.CircuitBreakerThreshold
	}
	if p.CircuitBreakerTimeout == 0 {
		p.CircuitBreakerTimeout = def.CircuitBreakerTimeout
	}
}

// Validate checks the configuration for errors. Invalid provider
// configuration fails the whole load rather than being silently defaulted
// at request time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider[%d] %q: duplicate name", i, p.Name)
		}
		seen[p.Name] = true
		if p.BaseURL == "" {
			return fmt.Errorf("provider[%d] %q: base_url is required", i, p.Name)
		}
		if len(p.APIKeys) == 0 {
			return fmt.Errorf("provider[%d] %q: at least one api key is required", i, p.Name)
		}
		for j, k := range p.APIKeys {
			if k == "" {
				return fmt.Errorf("provider[%d] %q: api key [%d] is empty", i, p.Name, j)
			}
		}
		if p.RequestsPerMinute < 0 || p.RequestsPerHour < 0 || p.RequestsPerDay < 0 {
			return fmt.Errorf("provider[%d] %q: rate limits cannot be negative", i, p.Name)
		}
		if p.Cooldown < 0 {
			return fmt.Errorf("provider[%d] %q: cooldown cannot be negative", i, p.Name)
		}
		if p.Timeout <= 0 {
			return fmt.Errorf("provider[%d] %q: timeout must be positive", i, p.Name)
		}
		if p.CircuitBreakerThreshold <= 0 {
			return fmt.Errorf("provider[%d] %q: circuit_breaker_threshold must be positive", i, p.Name)
		}
		if p.CircuitBreakerTimeout <= 0 {
			return fmt.Errorf("provider[%d] %q: circuit_breaker_timeout must be positive", i, p.Name)
		}
	}

	if c.Cache.DefaultTTL < 0 || c.Cache.SweepInterval < 0 {
		return fmt.Errorf("cache durations cannot be negative")
	}

	return nil
}
