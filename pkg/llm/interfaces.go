// Package llm provides OpenAI-compatible LLM client functionality.
package llm

import (
	"context"
)

// LLMClient defines the interface for LLM operations.
// Combines generative (chat completion), vision, and embedding capabilities.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	// GenerateResponse generates a plain chat completion response.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// AnalyzeImage sends a multimodal request with a base64-encoded image.
	AnalyzeImage(ctx context.Context, prompt string, imageBase64 string) (string, error)

	// ChatWithTools runs a bounded tool-calling conversation turn.
	ChatWithTools(ctx context.Context, req *ChatRequest, executor ToolExecutor) (string, error)

	// CreateEmbedding generates an embedding vector for the input text.
	CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error)

	// CreateEmbeddings generates embeddings for multiple inputs.
	CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure Client implements LLMClient at compile time.
var _ LLMClient = (*Client)(nil)

// Completer is the minimal interface for plain-text completion, used by the
// chat fallback path.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
