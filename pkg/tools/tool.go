// Package tools defines the tool invocation boundary. The engine never
// inspects tool internals; it only interprets the success/error envelope.
package tools

import "context"

// Result is the envelope every tool invocation returns.
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Tool is one named external capability.
type Tool interface {
	// Name is the identifier blocks use to invoke the tool.
	Name() string

	// Call performs the invocation. Transport-level failures are returned as
	// an error; failures the tool itself reports arrive as Success=false.
	Call(ctx context.Context, params map[string]any) (*Result, error)
}

// Invoker dispatches invocations by tool name. This is the only surface block
// handlers see.
type Invoker interface {
	Invoke(ctx context.Context, toolName string, params map[string]any) (*Result, error)
}
