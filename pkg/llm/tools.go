// Package llm provides OpenAI-compatible LLM client functionality.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// ToolDefinition defines a tool that can be called by the LLM.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ParameterProperty defines a parameter property in JSON Schema format.
type ParameterProperty struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *ParameterProperty `json:"items,omitempty"`
}

// NewToolDefinition creates a new tool definition with standard JSON Schema parameters.
func NewToolDefinition(name, description string, properties map[string]ParameterProperty, required []string) ToolDefinition {
	props := make(map[string]any)
	for k, v := range properties {
		prop := map[string]any{
			"type":        v.Type,
			"description": v.Description,
		}
		if len(v.Enum) > 0 {
			prop["enum"] = v.Enum
		}
		if v.Items != nil {
			prop["items"] = map[string]any{"type": v.Items.Type}
		}
		props[k] = prop
	}

	return ToolDefinition{
		Name:        name,
		Description: description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// ToolHandler executes one tool call. Arguments arrive as the raw JSON string
// from the model; results are returned as JSON for the model to read. Soft
// failures (bad input, unavailable backend) should be encoded in the result
// JSON rather than returned as errors, so the model can react to them.
type ToolHandler func(ctx context.Context, arguments string) (string, error)

// RegisteredTool pairs a tool definition with its handler and availability.
type RegisteredTool struct {
	Definition ToolDefinition
	Handler    ToolHandler
	// Available is checked at registration and dispatch. Tools whose backing
	// dependency is not configured are registered unavailable so the model
	// receives a structured error instead of the tool silently missing.
	Available bool
}

// ToolRegistry is a closed set of tools resolved once at startup.
// It implements ToolExecutor; unknown tool names are rejected.
type ToolRegistry struct {
	tools map[string]RegisteredTool
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]RegisteredTool)}
}

// Register adds a tool to the registry. Registering a duplicate name panics;
// the registry is assembled once during startup wiring.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	if _, exists := r.tools[tool.Definition.Name]; exists {
		panic(fmt.Sprintf("duplicate tool registration: %s", tool.Definition.Name))
	}
	r.tools[tool.Definition.Name] = tool
}

// Definitions returns the definitions of all available tools, sorted by name
// for stable prompt construction.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		if t.Available {
			defs = append(defs, t.Definition)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ExecuteTool implements ToolExecutor by dispatching to the registered handler.
func (r *ToolRegistry) ExecuteTool(ctx context.Context, name string, arguments string) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		return toolErrorJSON(fmt.Sprintf("unknown tool: %s", name)), nil
	}
	if !tool.Available {
		return toolErrorJSON(fmt.Sprintf("tool %s is not available in this deployment", name)), nil
	}
	return tool.Handler(ctx, arguments)
}

// toolErrorJSON encodes a soft tool failure as a JSON result for the model.
func toolErrorJSON(message string) string {
	b, _ := json.Marshal(map[string]string{"error": message})
	return string(b)
}
