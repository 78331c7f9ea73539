package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alorle/guide-resolver/internal/circuitbreaker"
)

// ResilienceConfig holds the per-country circuit breaker settings.
type ResilienceConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"` // failures before opening
	OpenTimeout      time.Duration `yaml:"open_timeout"`      // time before a half-open probe
	HalfOpenProbes   int           `yaml:"half_open_probes"`  // requests allowed while half-open
}

// DefaultResilienceConfig returns a ResilienceConfig with sensible defaults
func DefaultResilienceConfig() *ResilienceConfig {
	return &ResilienceConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenProbes:   1,
	}
}

// BreakerConfig converts the settings into a circuit breaker configuration.
func (c *ResilienceConfig) BreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold: c.FailureThreshold,
		OpenTimeout:      c.OpenTimeout,
		HalfOpenProbes:   c.HalfOpenProbes,
	}
}

// Validate performs additional validation on the configuration
func (c *ResilienceConfig) Validate() error {
	var errors []string

	if c.FailureThreshold <= 0 {
		errors = append(errors, "FailureThreshold must be positive")
	}
	if c.OpenTimeout <= 0 {
		errors = append(errors, "OpenTimeout must be positive")
	}
	if c.HalfOpenProbes <= 0 {
		errors = append(errors, "HalfOpenProbes must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// envParser is a helper for parsing environment variables with validation.
// Problems are collected so every bad variable is reported at once.
type envParser struct {
	errors []string
}

func (p *envParser) err() error {
	if len(p.errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(p.errors, "\n  - "))
	}
	return nil
}

func (p *envParser) parseString(envName string, target *string) {
	if val := strings.TrimSpace(os.Getenv(envName)); val != "" {
		*target = val
	}
}

// parseDuration parses a duration environment variable, ensuring it's positive
func (p *envParser) parseDuration(envName string, target *time.Duration) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: invalid duration format (use '30s', '1m', etc.)", envName))
		return
	}

	if duration <= 0 {
		p.errors = append(p.errors, fmt.Sprintf("%s must be positive", envName))
		return
	}

	*target = duration
}

// parseInt parses an integer environment variable, ensuring it's positive
func (p *envParser) parseInt(envName string, target *int) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: must be a valid integer", envName))
		return
	}

	if intVal <= 0 {
		p.errors = append(p.errors, fmt.Sprintf("%s must be positive", envName))
		return
	}

	*target = intVal
}

// parseFloat parses a non-negative float environment variable.
func (p *envParser) parseFloat(envName string, target *float64) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: must be a valid number", envName))
		return
	}

	if f < 0 {
		p.errors = append(p.errors, fmt.Sprintf("%s cannot be negative", envName))
		return
	}

	*target = f
}

// parseEnum parses an enum environment variable from a set of valid values
func (p *envParser) parseEnum(envName string, target *string, normalize func(string) string, validValues map[string]bool) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	normalized := normalize(strings.TrimSpace(val))
	if !validValues[normalized] {
		validList := make([]string, 0, len(validValues))
		for k := range validValues {
			validList = append(validList, k)
		}
		sort.Strings(validList)
		p.errors = append(p.errors, fmt.Sprintf("%s must be one of: %s", envName, strings.Join(validList, ", ")))
		return
	}

	*target = normalized
}

// parseMap parses "Name=value,Other=value" pairs, merging them into target.
// An empty value is kept so it can remove an entry downstream.
func (p *envParser) parseMap(envName string, target *map[string]string) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	parsed := make(map[string]string)
	for _, pair := range strings.Split(val, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			p.errors = append(p.errors, fmt.Sprintf("%s: invalid entry %q (use 'Name=code')", envName, pair))
			return
		}
		parsed[key] = strings.TrimSpace(value)
	}

	if *target == nil {
		*target = make(map[string]string, len(parsed))
	}
	for k, v := range parsed {
		(*target)[k] = v
	}
}
