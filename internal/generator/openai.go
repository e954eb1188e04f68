package generator

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when no model override is configured.
const DefaultOpenAIModel = "gpt-4o"

// OpenAI generates text through the OpenAI chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI builds the OpenAI backend. The API key is read from
// OPENAI_API_KEY; an empty model falls back to DefaultOpenAIModel.
func NewOpenAI(model string) (*OpenAI, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(systemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(userPrompt))

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(o.model),
		Messages:            msgs,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if temperature >= 0 {
		params.Temperature = openai.Float(temperature)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", wrapOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: "openai", Retriable: true, Err: errors.New("empty choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func wrapOpenAIErr(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &ProviderError{
			Provider:   "openai",
			StatusCode: apierr.StatusCode,
			Retriable:  retriableStatus(apierr.StatusCode),
			Err:        err,
		}
	}
	return &ProviderError{
		Provider:  "openai",
		Retriable: errors.Is(err, context.DeadlineExceeded) || retriableMessage(err.Error()),
		Err:       err,
	}
}
