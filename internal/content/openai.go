package content

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var _ Generator = (*OpenAIGenerator)(nil)

// ChatCompletionsService is the slice of the OpenAI client the generator needs.
type ChatCompletionsService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

const systemPrompt = "You are a Christian devotional writer. You answer with a single JSON object and nothing else."

// OpenAIGenerator produces content through the chat completions API.
type OpenAIGenerator struct {
	chat  ChatCompletionsService
	model openai.ChatModel
}

// NewOpenAIGenerator creates a generator. baseURL may be empty.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return NewOpenAIGeneratorWith(&client.Chat.Completions, model)
}

func NewOpenAIGeneratorWith(chat ChatCompletionsService, model string) *OpenAIGenerator {
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAIGenerator{chat: chat, model: openai.ChatModel(model)}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.chat.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       g.model,
		Temperature: openai.Float(0.8),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// ModelName returns the chat model in use.
func (g *OpenAIGenerator) ModelName() string { return string(g.model) }
