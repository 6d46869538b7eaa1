// Package function executes sandboxed code blocks through the function
// runner tool.
package function

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/braidflow/braid/pkg/execution"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
	"github.com/braidflow/braid/pkg/tools"
)

const (
	// DefaultTimeoutMS bounds a function invocation when the block declares
	// no timeout of its own.
	DefaultTimeoutMS = 5000

	toolName      = "function_execute"
	fallbackError = "Function execution failed"
)

type Handler struct {
	invoker tools.Invoker
	logger  *slog.Logger
}

func NewHandler(invoker tools.Invoker, logger *slog.Logger) *Handler {
	return &Handler{
		invoker: invoker,
		logger:  logger.With("module", "function_handler"),
	}
}

func (h *Handler) Name() string {
	return "function"
}

func (h *Handler) CanHandle(block *models.Block) bool {
	return block.Kind == models.KindFunction
}

func (h *Handler) Execute(ctx context.Context, block *models.Block, inputs map[string]any, state protocol.RunState) (map[string]any, error) {
	code, _ := inputs["code"].(string)

	timeout, declared := inputs["timeout"]
	if !declared {
		timeout = DefaultTimeoutMS
	}

	params := map[string]any{
		"code":    code,
		"timeout": timeout,
		"_context": map[string]any{
			"workflowId": state.WorkflowID(),
		},
	}

	duration := timeoutDuration(timeout)

	callCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	h.logger.DebugContext(ctx, "invoking function runner",
		"block_id", block.ID,
		"timeout_ms", duration.Milliseconds())

	result, err := h.invoker.Invoke(callCtx, toolName, params)
	if err != nil {
		// Distinguish the block's own deadline from run cancellation.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &execution.TimeoutError{Tool: toolName, Timeout: duration}
		}

		return nil, err
	}

	if !result.Success {
		message := result.Error
		if message == "" {
			message = fallbackError
		}

		return nil, &execution.ToolInvocationError{Tool: toolName, Message: message}
	}

	return map[string]any{"response": result.Output}, nil
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{
				"type":        "string",
				"description": "What the function computes, for operators reading the workflow.",
			},
		},
	}
}

func timeoutDuration(value any) time.Duration {
	switch number := value.(type) {
	case int:
		if number > 0 {
			return time.Duration(number) * time.Millisecond
		}
	case int64:
		if number > 0 {
			return time.Duration(number) * time.Millisecond
		}
	case float64:
		if number > 0 {
			return time.Duration(number) * time.Millisecond
		}
	}

	return DefaultTimeoutMS * time.Millisecond
}
