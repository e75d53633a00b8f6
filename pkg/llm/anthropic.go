package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicCompleter provides plain-text completions from the Anthropic API.
// It backs the chat fallback path when the primary tool-calling model fails.
type AnthropicCompleter struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicCompleter creates an Anthropic-backed completer.
func NewAnthropicCompleter(apiKey, model string, logger *zap.Logger) (*AnthropicCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &AnthropicCompleter{
		client: anthropic.NewClient(apiKey),
		model:  model,
		logger: logger.Named("anthropic"),
	}, nil
}

// Complete sends a single-turn text prompt and returns the text response.
func (c *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					{
						Type: "text",
						Text: &prompt,
					},
				},
			},
		},
	})
	if err != nil {
		c.logger.Warn("Anthropic completion failed", zap.Error(err))
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("empty anthropic response")
	}
	return text, nil
}

// Ensure AnthropicCompleter implements Completer at compile time.
var _ Completer = (*AnthropicCompleter)(nil)
