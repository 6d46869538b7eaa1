package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrToolNotFound indicates an invocation named a tool that was never
// registered.
var ErrToolNotFound = errors.New("tool not registered")

// Registry is the default Invoker: a fixed map of named tools registered at
// process start.
type Registry struct {
	logger *slog.Logger
	tools  map[string]Tool
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger.With("module", "tools"),
		tools:  make(map[string]Tool),
	}
}

// Register adds a tool. Registering the same name twice replaces the earlier
// tool.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]

	return ok
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}

	return names
}

// Invoke dispatches to the named tool.
func (r *Registry) Invoke(ctx context.Context, toolName string, params map[string]any) (*Result, error) {
	tool, ok := r.tools[toolName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, toolName)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := tool.Call(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", toolName, err)
	}

	return result, nil
}
