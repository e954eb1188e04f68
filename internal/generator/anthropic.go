package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model override is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5-20250929"

// Anthropic generates text through the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic builds the Anthropic backend. The API key is read from
// ANTHROPIC_API_KEY; an empty model falls back to DefaultAnthropicModel.
func NewAnthropic(model string) (*Anthropic, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if temperature >= 0 {
		params.Temperature = anthropic.Float(temperature)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", wrapAnthropicErr(err)
	}

	// Extract the text content from the response
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", &ProviderError{Provider: "anthropic", Retriable: true, Err: errors.New("response contained no text blocks")}
	}
	return text.String(), nil
}

func wrapAnthropicErr(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &ProviderError{
			Provider:   "anthropic",
			StatusCode: apierr.StatusCode,
			Retriable:  retriableStatus(apierr.StatusCode),
			Err:        err,
		}
	}
	return &ProviderError{
		Provider:  "anthropic",
		Retriable: errors.Is(err, context.DeadlineExceeded) || retriableMessage(err.Error()),
		Err:       err,
	}
}
