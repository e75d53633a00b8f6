package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// MaxToolRounds bounds how many tool-call rounds a single chat turn may use.
const MaxToolRounds = 5

// ErrToolRoundsExceeded is returned when the model keeps requesting tools
// past the round budget. Callers synthesize a user-facing reply instead of
// surfacing this as a hard failure.
var ErrToolRoundsExceeded = errors.New("exceeded maximum tool rounds")

// Message represents a chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc represents a function call within a tool call.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolExecutor defines the interface for executing tools.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, name string, arguments string) (string, error)
}

// ChatRequest represents a tool-calling chat completion request.
type ChatRequest struct {
	Messages     []Message
	Tools        []ToolDefinition
	Temperature  float64
	SystemPrompt string
}

// ChatWithTools performs a non-streaming chat completion with tool support.
// The loop runs at most MaxToolRounds model calls; each round either returns
// final text or dispatches the requested tools and feeds results back as
// tool-role messages. Returns ErrToolRoundsExceeded when the budget runs out.
func (c *Client) ChatWithTools(ctx context.Context, req *ChatRequest, executor ToolExecutor) (string, error) {
	messages := buildOpenAIMessages(req.Messages, req.SystemPrompt)
	tools := buildOpenAITools(req.Tools)

	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = 0.3 // Lower temp for deterministic tool use
	}

	for round := 0; round < MaxToolRounds; round++ {
		c.logger.Debug("Chat round",
			zap.Int("round", round),
			zap.Int("message_count", len(messages)))

		start := time.Now()
		resp, err := c.createChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Tools:       tools,
			Temperature: temperature,
		})
		if err != nil {
			return "", err
		}

		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no choices in response")
		}

		choice := resp.Choices[0]
		content := choice.Message.Content

		// Some models emit tool calls as text markup instead of using the
		// native tool-call fields.
		var toolCalls []ToolCall
		if len(choice.Message.ToolCalls) == 0 && content != "" {
			toolCalls = parseTextToolCalls(content)
			if len(toolCalls) > 0 {
				content = CleanModelOutput(content)
			}
		} else {
			for _, tc := range choice.Message.ToolCalls {
				toolCalls = append(toolCalls, ToolCall{
					ID:   tc.ID,
					Type: string(tc.Type),
					Function: ToolCallFunc{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
		}

		c.logger.Debug("Chat round completed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("tool_calls", len(toolCalls)))

		// No tool calls means the turn is finished.
		if len(toolCalls) == 0 {
			return content, nil
		}

		assistantMsg := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: content,
		}
		for _, tc := range toolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		messages = append(messages, assistantMsg)

		for _, tc := range toolCalls {
			result, execErr := executor.ExecuteTool(ctx, tc.Function.Name, tc.Function.Arguments)
			if execErr != nil {
				result = fmt.Sprintf("Error executing tool: %s", execErr.Error())
			}

			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	return "", fmt.Errorf("%w (%d)", ErrToolRoundsExceeded, MaxToolRounds)
}

// parseTextToolCalls parses tool calls from text output (for non-native tool calling models).
func parseTextToolCalls(content string) []ToolCall {
	var toolCalls []ToolCall

	// XML format: <tool_call>{"name": "...", "arguments": {...}}</tool_call>
	toolCallRegex := regexp.MustCompile(`<tool_call>\s*(\{[\s\S]*?\})\s*</tool_call>`)
	matches := toolCallRegex.FindAllStringSubmatch(content, -1)

	for i, match := range matches {
		if len(match) < 2 {
			continue
		}

		var toolCallJSON struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}

		if err := json.Unmarshal([]byte(match[1]), &toolCallJSON); err != nil {
			continue
		}

		argsJSON, err := json.Marshal(toolCallJSON.Arguments)
		if err != nil {
			continue
		}

		toolCalls = append(toolCalls, ToolCall{
			ID:   fmt.Sprintf("text_tool_%d", i),
			Type: "function",
			Function: ToolCallFunc{
				Name:      toolCallJSON.Name,
				Arguments: string(argsJSON),
			},
		})
	}

	return toolCalls
}

var (
	thinkingBlockRegex = regexp.MustCompile(`(?s)<think(?:ing)?>.*?</think(?:ing)?>`)
	toolCallBlockRegex = regexp.MustCompile(`<tool_call>[\s\S]*?</tool_call>`)
	multiNewlineRegex  = regexp.MustCompile(`\n{3,}`)
)

// CleanModelOutput removes reasoning markup and tool call blocks from model
// output before it is shown to users.
func CleanModelOutput(content string) string {
	content = thinkingBlockRegex.ReplaceAllString(content, "")
	content = toolCallBlockRegex.ReplaceAllString(content, "")
	content = multiNewlineRegex.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// buildOpenAIMessages converts our message format to OpenAI format.
func buildOpenAIMessages(messages []Message, systemPrompt string) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage

	if systemPrompt != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}

		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}

		result = append(result, oaiMsg)
	}

	return result
}

// buildOpenAITools converts our tool definitions to OpenAI format.
func buildOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.Tool, len(tools))
	for i, def := range tools {
		paramsJSON, _ := json.Marshal(def.Parameters)
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(paramsJSON),
			},
		}
	}

	return result
}
