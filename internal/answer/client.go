// Package answer asks questions of an OpenAI-compatible chat completions
// service (X.AI by default).
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"taskbot/internal/domain"
)

const (
	DefaultBaseURL = "https://api.x.ai/v1"
	DefaultModel   = "grok-beta"

	noResponse = "No response received"
)

const systemPrompt = `You are a helpful assistant. When formatting responses:
- Use *word* for bold text (surround text with single asterisks)
- Start list items with - or *
- Keep responses clear and structured
- Separate paragraphs with blank lines

Example format:
Here are the prices:
- *Bitcoin (BTC)*: The price is $50,000
- *Ethereum (ETH)*: The price is $3,000`

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

type Client struct {
	client openai.Client
	model  string
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	// chat/completions is resolved relative to the base path
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	return &Client{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
		),
		model: cfg.Model,
	}
}

// Ask sends question and returns the first choice's text. Failures wrap
// domain.ErrServiceUnavailable.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(question),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return noResponse, nil
	}
	return resp.Choices[0].Message.Content, nil
}
