package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDrafting, "drafting"},
		{StateReviewing, "reviewing"},
		{StatePatching, "patching"},
		{StateRewriting, "rewriting"},
		{StateAccepted, "accepted"},
		{StateExhausted, "exhausted"},
		{StateFailed, "failed"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateAccepted.Terminal())
	assert.True(t, StateExhausted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateDrafting.Terminal())
	assert.False(t, StateReviewing.Terminal())
	assert.False(t, StatePatching.Terminal())
	assert.False(t, StateRewriting.Terminal())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 90, cfg.AcceptThreshold)
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.InDelta(t, 0.7, cfg.Temperature, 0.001)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 3, cfg.RateLimitRetries)
	assert.Equal(t, 2*time.Second, cfg.RateLimitWait)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with idea", func(c *Config) {}, false},
		{"empty idea", func(c *Config) { c.Idea = "" }, true},
		{"whitespace idea", func(c *Config) { c.Idea = "  \t " }, true},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }, true},
		{"negative iterations", func(c *Config) { c.MaxIterations = -2 }, true},
		{"one iteration", func(c *Config) { c.MaxIterations = 1 }, false},
		{"threshold zero", func(c *Config) { c.AcceptThreshold = 0 }, false},
		{"threshold hundred", func(c *Config) { c.AcceptThreshold = 100 }, false},
		{"threshold negative", func(c *Config) { c.AcceptThreshold = -1 }, true},
		{"threshold over", func(c *Config) { c.AcceptThreshold = 101 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Idea = "a real idea"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
