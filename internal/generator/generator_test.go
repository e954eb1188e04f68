package generator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewSelectsBackend tests the registry name handling
func TestNewSelectsBackend(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("OPENAI_API_KEY", "test-key")

	tests := []struct {
		name     string
		expected string
	}{
		{"anthropic", "anthropic"},
		{"", "anthropic"},
		{"  Anthropic  ", "anthropic"},
		{"openai", "openai"},
		{"OpenAI", "openai"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("name %q", tt.name), func(t *testing.T) {
			gen, err := New(tt.name, "")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, gen.Name())
		})
	}
}

// TestNewUnknownBackend tests that unsupported names are rejected
func TestNewUnknownBackend(t *testing.T) {
	_, err := New("gemini", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown generator")
}

// TestNewRequiresAPIKey tests that missing keys fail at construction,
// not at first call
func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New("anthropic", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	_, err = New("openai", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

// TestNewModelOverride tests default and overridden model selection
func TestNewModelOverride(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("OPENAI_API_KEY", "test-key")

	gen, err := New("anthropic", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicModel, gen.(*Anthropic).model)

	gen, err = New("anthropic", "claude-3-5-haiku-20241022")
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-20241022", gen.(*Anthropic).model)

	gen, err = New("openai", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, gen.(*OpenAI).model)
}

// TestProviderErrorFormat tests the error text with and without a status
func TestProviderErrorFormat(t *testing.T) {
	withStatus := &ProviderError{Provider: "anthropic", StatusCode: 429, Err: errors.New("too many requests")}
	assert.Equal(t, "anthropic generator: status 429: too many requests", withStatus.Error())

	noStatus := &ProviderError{Provider: "openai", Err: errors.New("connection refused")}
	assert.Equal(t, "openai generator: connection refused", noStatus.Error())

	cause := errors.New("boom")
	assert.ErrorIs(t, &ProviderError{Provider: "mock", Err: cause}, cause)
}

// TestWrapAnthropicErr tests retriability classification of SDK errors
func TestWrapAnthropicErr(t *testing.T) {
	var pe *ProviderError

	err := wrapAnthropicErr(&anthropic.Error{StatusCode: 429})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 429, pe.StatusCode)
	assert.True(t, pe.Retriable)

	err = wrapAnthropicErr(&anthropic.Error{StatusCode: 401})
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Retriable)

	err = wrapAnthropicErr(errors.New("dial tcp: connection reset by peer"))
	require.ErrorAs(t, err, &pe)
	assert.Zero(t, pe.StatusCode)
	assert.True(t, pe.Retriable)
}

// TestWrapOpenAIErr tests retriability classification of SDK errors
func TestWrapOpenAIErr(t *testing.T) {
	var pe *ProviderError

	err := wrapOpenAIErr(&openai.Error{StatusCode: 503})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 503, pe.StatusCode)
	assert.True(t, pe.Retriable)

	err = wrapOpenAIErr(&openai.Error{StatusCode: 404})
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Retriable)
}
