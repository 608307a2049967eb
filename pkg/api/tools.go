package api

import (
	"context"
)

// Tool defines the structural interface for any capability an agent can
// invoke while preparing its answer (e.g., web search).
type Tool interface {
	// Name is the unique registry key of the tool.
	Name() string
	// Description is a human-readable summary shown in status output.
	Description() string
	// Execute performs the actual tool logic using the provided argument map.
	Execute(ctx context.Context, args map[string]any) (*ToolResult, error)
}

// ToolResult encapsulates the outcome of a tool execution.
type ToolResult struct {
	// Content is the formatted text the agent injects into its prompt.
	Content string `json:"content"`
	// Details carries arbitrary structured metadata for the caller.
	Details map[string]any `json:"details,omitempty"`
}

// ToolRegistry defines the interface for managing and accessing tools.
type ToolRegistry interface {
	Register(tool Tool)
	Unregister(name string)
	Get(name string) (Tool, bool)
	GetAll() []Tool
}
