// Package config holds the file- and environment-tunable settings of
// the draftloop CLI. Precedence is defaults, then config file, then
// environment; command-line flags override all three in cmd.
//
// Provider credentials are deliberately not part of Config: the
// generator backends read ANTHROPIC_API_KEY and OPENAI_API_KEY from the
// environment directly, so keys never end up in a config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the session and generator tuning knobs.
type Config struct {
	// Generator selects the backend: "anthropic" or "openai"
	// Default: "anthropic"
	Generator string `yaml:"generator"`

	// Model overrides the backend's default model name
	// Default: "" (backend default)
	Model string `yaml:"model"`

	// AcceptThreshold is the minimum review score for acceptance
	// Default: 90, Range: 0-100
	AcceptThreshold int `yaml:"accept_threshold"`

	// MaxIterations bounds how many draft versions a session may produce
	// Default: 3, Range: 1-1000000
	MaxIterations int `yaml:"max_iterations"`

	// Temperature is passed through to the generator
	// Default: 0.7, Range: 0.0-2.0
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps each generator response
	// Default: 4096, Range: 256-200000
	MaxTokens int `yaml:"max_tokens"`

	// TopK is how many reference snippets retrieval returns
	// Default: 5, Range: 1-100
	TopK int `yaml:"top_k"`

	// RequestsPerMinute is the shared generator rate limit
	// Set to 0 to disable rate limiting
	// Default: 30, Range: 0-10000
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// RateLimitRetries is how often a session re-attempts a rate-limited
	// generator call before giving up
	// Default: 3, Range: 1-20
	RateLimitRetries int `yaml:"rate_limit_retries"`

	// RateLimitWaitSeconds is the pause between those re-attempts
	// Default: 2, Range: 1-300
	RateLimitWaitSeconds int `yaml:"rate_limit_wait_seconds"`

	// MaxRetries is the generator caller's retry budget for transient
	// provider failures
	// Default: 3, Range: 1-10
	MaxRetries int `yaml:"max_retries"`

	// MaxConcurrentCalls caps in-flight generator calls across sessions
	// Set to 0 for unlimited
	// Default: 3, Range: 0-64
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Generator:            "anthropic",
		Model:                "",
		AcceptThreshold:      90,
		MaxIterations:        3,
		Temperature:          0.7,
		MaxTokens:            4096,
		TopK:                 5,
		RequestsPerMinute:    30,
		RateLimitRetries:     3,
		RateLimitWaitSeconds: 2,
		MaxRetries:           3,
		MaxConcurrentCalls:   3,
	}
}

// Validate checks if the configuration has valid values.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Generator)) {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("generator must be 'anthropic' or 'openai' (got %q)", c.Generator)
	}

	if c.AcceptThreshold < 0 || c.AcceptThreshold > 100 {
		return fmt.Errorf("accept_threshold must be between 0 and 100 (got %d)", c.AcceptThreshold)
	}

	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1 (got %d)", c.MaxIterations)
	}
	if c.MaxIterations > 1000000 {
		return fmt.Errorf("max_iterations too large (got %d, max 1000000)", c.MaxIterations)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0 (got %g)", c.Temperature)
	}

	if c.MaxTokens < 256 {
		return fmt.Errorf("max_tokens must be at least 256 (got %d)", c.MaxTokens)
	}
	if c.MaxTokens > 200000 {
		return fmt.Errorf("max_tokens too large (got %d, max 200000)", c.MaxTokens)
	}

	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("top_k must be between 1 and 100 (got %d)", c.TopK)
	}

	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative (got %d)", c.RequestsPerMinute)
	}
	if c.RequestsPerMinute > 10000 {
		return fmt.Errorf("requests_per_minute too large (got %d, max 10000)", c.RequestsPerMinute)
	}

	if c.RateLimitRetries < 1 || c.RateLimitRetries > 20 {
		return fmt.Errorf("rate_limit_retries must be between 1 and 20 (got %d)", c.RateLimitRetries)
	}

	if c.RateLimitWaitSeconds < 1 || c.RateLimitWaitSeconds > 300 {
		return fmt.Errorf("rate_limit_wait_seconds must be between 1 and 300 (got %d)", c.RateLimitWaitSeconds)
	}

	if c.MaxRetries < 1 || c.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be between 1 and 10 (got %d)", c.MaxRetries)
	}

	if c.MaxConcurrentCalls < 0 || c.MaxConcurrentCalls > 64 {
		return fmt.Errorf("max_concurrent_calls must be between 0 and 64 (got %d)", c.MaxConcurrentCalls)
	}

	return nil
}

// RateLimitWait returns RateLimitWaitSeconds as a Duration.
func (c Config) RateLimitWait() time.Duration {
	return time.Duration(c.RateLimitWaitSeconds) * time.Second
}

// String returns a human-readable representation of the config.
func (c Config) String() string {
	model := c.Model
	if model == "" {
		model = "(backend default)"
	}
	return fmt.Sprintf(
		"Config{Generator: %s, Model: %s, AcceptThreshold: %d, MaxIterations: %d, "+
			"Temperature: %g, MaxTokens: %d, TopK: %d, RPM: %d, "+
			"RateLimitRetries: %d, RateLimitWait: %ds, MaxRetries: %d, MaxConcurrent: %d}",
		c.Generator, model, c.AcceptThreshold, c.MaxIterations,
		c.Temperature, c.MaxTokens, c.TopK, c.RequestsPerMinute,
		c.RateLimitRetries, c.RateLimitWaitSeconds, c.MaxRetries, c.MaxConcurrentCalls,
	)
}

// Load builds the effective configuration: defaults, overlaid with the
// YAML file at path when path is non-empty, overlaid with environment
// variables, then validated.
//
// Environment variables:
//   - DRAFTLOOP_GENERATOR: backend name, anthropic or openai (default: anthropic)
//   - DRAFTLOOP_MODEL: model name override (default: backend default)
//   - DRAFTLOOP_ACCEPT_THRESHOLD: minimum score for acceptance (default: 90)
//   - DRAFTLOOP_MAX_ITERATIONS: iteration budget per session (default: 3)
//   - DRAFTLOOP_TEMPERATURE: generator temperature (default: 0.7)
//   - DRAFTLOOP_MAX_TOKENS: generator response cap (default: 4096)
//   - DRAFTLOOP_TOP_K: reference snippets per retrieval (default: 5)
//   - DRAFTLOOP_REQUESTS_PER_MINUTE: shared rate limit, 0 disables (default: 30)
//   - DRAFTLOOP_RATE_LIMIT_RETRIES: rate-limit re-attempts per call (default: 3)
//   - DRAFTLOOP_RATE_LIMIT_WAIT_SECONDS: pause between re-attempts (default: 2)
//   - DRAFTLOOP_MAX_RETRIES: transient-failure retry budget (default: 3)
//   - DRAFTLOOP_MAX_CONCURRENT_CALLS: in-flight call cap, 0 unlimited (default: 3)
//
// Returns an error if the file is unreadable, any variable has an
// invalid value, or the final configuration fails validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv builds the effective configuration from defaults and
// environment variables alone.
func FromEnv() (Config, error) {
	return Load("")
}

func applyEnv(cfg *Config) error {
	if err := parseEnvString("DRAFTLOOP_GENERATOR", &cfg.Generator); err != nil {
		return err
	}
	if err := parseEnvString("DRAFTLOOP_MODEL", &cfg.Model); err != nil {
		return err
	}
	if err := parseEnvInt("DRAFTLOOP_ACCEPT_THRESHOLD", &cfg.AcceptThreshold); err != nil {
		return err
	}
	if err := parseEnvInt("DRAFTLOOP_MAX_ITERATIONS", &cfg.MaxIterations); err != nil {
		return err
	}
	if err := parseEnvFloat("DRAFTLOOP_TEMPERATURE", &cfg.Temperature); err != nil {
		return err
	}
	if err := parseEnvInt("DRAFTLOOP_MAX_TOKENS", &cfg.MaxTokens); err != nil {
		return err
	}
	if err := parseEnvInt("DRAFTLOOP_TOP_K", &cfg.TopK); err != nil {
		return err
	}
	if err := parseEnvInt("DRAFTLOOP_REQUESTS_PER_MINUTE", &cfg.RequestsPerMinute); err != nil {
		return err
	}
	if err := parseEnvInt("DRAFTLOOP_RATE_LIMIT_RETRIES", &cfg.RateLimitRetries); err != nil {
		return err
	}
	if err := parseEnvInt("DRAFTLOOP_RATE_LIMIT_WAIT_SECONDS", &cfg.RateLimitWaitSeconds); err != nil {
		return err
	}
	if err := parseEnvInt("DRAFTLOOP_MAX_RETRIES", &cfg.MaxRetries); err != nil {
		return err
	}
	if err := parseEnvInt("DRAFTLOOP_MAX_CONCURRENT_CALLS", &cfg.MaxConcurrentCalls); err != nil {
		return err
	}
	return nil
}

// parseEnvInt parses an int from an environment variable.
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float from an environment variable.
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable.
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	*dest = value
	return nil
}
