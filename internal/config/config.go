package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alorle/guide-resolver/internal/cache"
	"github.com/alorle/guide-resolver/internal/guide"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

// Config holds the complete application configuration
type Config struct {
	// HTTP server settings
	HTTP struct {
		Address string `yaml:"address"`
		Port    string `yaml:"port"`
	} `yaml:"http"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Resolver ResolverConfig `yaml:"resolver"`
	Fallback FallbackConfig `yaml:"fallback"`

	Resilience ResilienceConfig `yaml:"resilience"`

	Log LogConfig `yaml:"log"`
}

// UpstreamConfig describes the published guide source.
type UpstreamConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`

	// Countries overrides the built-in country to code table. An empty
	// code removes the country.
	Countries map[string]string `yaml:"countries"`
}

// CacheConfig selects the cache lifetime and persistence backend.
type CacheConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	Backend     string        `yaml:"backend"`
	BoltPath    string        `yaml:"bolt_path"`
	RedisURL    string        `yaml:"redis_url"`
	RedisPrefix string        `yaml:"redis_prefix"`
}

type ResolverConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type FallbackConfig struct {
	Slots        int           `yaml:"slots"`
	SlotDuration time.Duration `yaml:"slot_duration"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File enables rotating file output in addition to stdout.
	File string `yaml:"file"`
}

// CountryTable builds the country lookup table with configured overrides.
func (c *Config) CountryTable() guide.CountryTable {
	return guide.NewCountryTable(c.Upstream.Countries)
}

// WriteTimeout bounds an HTTP response. A batch request for every configured
// country needs ceil(countries/concurrency) sequential fetch rounds; countries
// without a source never fetch.
func (c *Config) WriteTimeout() time.Duration {
	countries := c.CountryTable().Len()
	concurrency := max(c.Resolver.Concurrency, 1)
	rounds := max((countries+concurrency-1)/concurrency, 1)
	return time.Duration(rounds)*c.Resolver.FetchTimeout + writeTimeoutSlack
}

const writeTimeoutSlack = 15 * time.Second

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	var errors []string

	// Validate HTTP settings
	if c.HTTP.Port == "" {
		errors = append(errors, "HTTP port is required")
	}

	// Validate upstream settings
	if c.Upstream.BaseURL == "" {
		errors = append(errors, "Upstream base URL is required")
	} else if u, err := url.Parse(c.Upstream.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("Upstream base URL %q must be an absolute http(s) URL", c.Upstream.BaseURL))
	}
	if c.Upstream.Timeout <= 0 {
		errors = append(errors, "Upstream timeout must be positive")
	}
	if c.Upstream.RatePerSecond < 0 {
		errors = append(errors, "Upstream rate per second cannot be negative")
	}
	if c.Upstream.RatePerSecond > 0 && c.Upstream.Burst <= 0 {
		errors = append(errors, "Upstream burst must be positive when rate limiting is enabled")
	}

	// Validate cache settings
	if c.Cache.TTL <= 0 {
		errors = append(errors, "Cache TTL must be positive")
	}
	switch c.Cache.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.Cache.BoltPath == "" {
			errors = append(errors, "Cache bolt path is required for the bolt backend")
		}
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			errors = append(errors, "Cache redis URL is required for the redis backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("Cache backend must be one of: %s, %s, %s", BackendMemory, BackendBolt, BackendRedis))
	}

	// Validate resolver settings
	if c.Resolver.Concurrency <= 0 {
		errors = append(errors, "Resolver concurrency must be positive")
	}
	if c.Resolver.FetchTimeout <= 0 {
		errors = append(errors, "Resolver fetch timeout must be positive")
	}

	// Validate fallback settings
	if c.Fallback.Slots <= 0 || c.Fallback.Slots > guide.MaxPrograms {
		errors = append(errors, fmt.Sprintf("Fallback slots must be between 1 and %d", guide.MaxPrograms))
	}
	if c.Fallback.SlotDuration <= 0 {
		errors = append(errors, "Fallback slot duration must be positive")
	}

	if err := c.Resilience.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("Resilience config: %v", err))
	}

	if !validLogLevels[strings.ToUpper(c.Log.Level)] {
		errors = append(errors, "Log level must be one of: DEBUG, INFO, WARN, ERROR")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

var validLogLevels = map[string]bool{
	"DEBUG": true,
	"INFO":  true,
	"WARN":  true,
	"ERROR": true,
}

// Default returns a Config with sensible default values
func Default() *Config {
	cfg := &Config{}

	cfg.HTTP.Address = "127.0.0.1"
	cfg.HTTP.Port = "8080"

	cfg.Upstream.BaseURL = "" // Required, no default
	cfg.Upstream.Timeout = 15 * time.Second
	cfg.Upstream.RatePerSecond = 2
	cfg.Upstream.Burst = 4

	cfg.Cache.TTL = cache.DefaultTTL
	cfg.Cache.Backend = BackendMemory
	cfg.Cache.BoltPath = "guide-resolver.db"
	cfg.Cache.RedisPrefix = "guide-resolver:"

	cfg.Resolver.Concurrency = 3
	cfg.Resolver.FetchTimeout = 15 * time.Second

	cfg.Fallback.Slots = guide.DefaultFallbackSlots
	cfg.Fallback.SlotDuration = guide.DefaultFallbackSlotDuration

	cfg.Resilience = *DefaultResilienceConfig()

	cfg.Log.Level = "INFO"

	return cfg
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load reads CONFIG_FILE (default config.yaml) when it exists, applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); err == nil {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg = Default()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) error {
	p := &envParser{}

	p.parseString("HTTP_ADDRESS", &cfg.HTTP.Address)
	p.parseString("HTTP_PORT", &cfg.HTTP.Port)

	p.parseString("UPSTREAM_BASE_URL", &cfg.Upstream.BaseURL)
	p.parseDuration("UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout)
	p.parseFloat("UPSTREAM_RATE_PER_SECOND", &cfg.Upstream.RatePerSecond)
	p.parseInt("UPSTREAM_BURST", &cfg.Upstream.Burst)
	p.parseMap("UPSTREAM_COUNTRIES", &cfg.Upstream.Countries)

	p.parseDuration("CACHE_TTL", &cfg.Cache.TTL)
	p.parseEnum("CACHE_BACKEND", &cfg.Cache.Backend, strings.ToLower, map[string]bool{
		BackendMemory: true,
		BackendBolt:   true,
		BackendRedis:  true,
	})
	p.parseString("CACHE_BOLT_PATH", &cfg.Cache.BoltPath)
	p.parseString("CACHE_REDIS_URL", &cfg.Cache.RedisURL)
	p.parseString("CACHE_REDIS_PREFIX", &cfg.Cache.RedisPrefix)

	p.parseInt("RESOLVER_CONCURRENCY", &cfg.Resolver.Concurrency)
	p.parseDuration("RESOLVER_FETCH_TIMEOUT", &cfg.Resolver.FetchTimeout)

	p.parseInt("FALLBACK_SLOTS", &cfg.Fallback.Slots)
	p.parseDuration("FALLBACK_SLOT_DURATION", &cfg.Fallback.SlotDuration)

	p.parseInt("CB_FAILURE_THRESHOLD", &cfg.Resilience.FailureThreshold)
	p.parseDuration("CB_OPEN_TIMEOUT", &cfg.Resilience.OpenTimeout)
	p.parseInt("CB_HALF_OPEN_PROBES", &cfg.Resilience.HalfOpenProbes)

	p.parseEnum("LOG_LEVEL", &cfg.Log.Level, strings.ToUpper, validLogLevels)
	p.parseString("LOG_FILE", &cfg.Log.File)

	return p.err()
}
