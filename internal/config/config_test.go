package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "anthropic", cfg.Generator)
	assert.Equal(t, 90, cfg.AcceptThreshold)
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, 2*time.Second, cfg.RateLimitWait())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown generator", func(c *Config) { c.Generator = "gemini" }},
		{"threshold negative", func(c *Config) { c.AcceptThreshold = -1 }},
		{"threshold over 100", func(c *Config) { c.AcceptThreshold = 101 }},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"iterations too large", func(c *Config) { c.MaxIterations = 2000000 }},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }},
		{"max tokens too small", func(c *Config) { c.MaxTokens = 100 }},
		{"top_k zero", func(c *Config) { c.TopK = 0 }},
		{"negative rpm", func(c *Config) { c.RequestsPerMinute = -1 }},
		{"zero wait seconds", func(c *Config) { c.RateLimitWaitSeconds = 0 }},
		{"retries too large", func(c *Config) { c.MaxRetries = 11 }},
		{"retries zero", func(c *Config) { c.MaxRetries = 0 }},
		{"rate limit retries zero", func(c *Config) { c.RateLimitRetries = 0 }},
		{"concurrency too large", func(c *Config) { c.MaxConcurrentCalls = 65 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsBoundaries(t *testing.T) {
	cfg := Default()
	cfg.AcceptThreshold = 0
	cfg.Temperature = 0
	cfg.RequestsPerMinute = 0
	cfg.MaxConcurrentCalls = 0
	cfg.MaxRetries = 1
	cfg.RateLimitRetries = 1
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.AcceptThreshold = 100
	cfg.Temperature = 2.0
	cfg.MaxIterations = 1000000
	assert.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DRAFTLOOP_GENERATOR", "openai")
	t.Setenv("DRAFTLOOP_MODEL", "gpt-4o-mini")
	t.Setenv("DRAFTLOOP_MAX_ITERATIONS", "7")
	t.Setenv("DRAFTLOOP_TEMPERATURE", "0.2")
	t.Setenv("DRAFTLOOP_REQUESTS_PER_MINUTE", "0")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Generator)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.InDelta(t, 0.2, cfg.Temperature, 0.001)
	assert.Equal(t, 0, cfg.RequestsPerMinute)
	// Untouched fields keep defaults.
	assert.Equal(t, 90, cfg.AcceptThreshold)
}

func TestFromEnvRejectsMalformedValue(t *testing.T) {
	t.Setenv("DRAFTLOOP_MAX_ITERATIONS", "many")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DRAFTLOOP_MAX_ITERATIONS")
}

func TestFromEnvRejectsOutOfRangeValue(t *testing.T) {
	t.Setenv("DRAFTLOOP_ACCEPT_THRESHOLD", "150")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accept_threshold")
}

func TestLoadFileMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draftloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accept_threshold: 80\nmax_iterations: 5\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.AcceptThreshold)
	assert.Equal(t, 5, cfg.MaxIterations)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, "anthropic", cfg.Generator)
	assert.Equal(t, 4096, cfg.MaxTokens)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draftloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_iterations: 5\n"), 0o644))
	t.Setenv("DRAFTLOOP_MAX_ITERATIONS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxIterations)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draftloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_iterations: [not, a, number]\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestStringRedactsNothingButReadsWell(t *testing.T) {
	s := Default().String()
	assert.Contains(t, s, "Generator: anthropic")
	assert.Contains(t, s, "AcceptThreshold: 90")
	assert.Contains(t, s, "(backend default)")
}
