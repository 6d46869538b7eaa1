// Package tool bridges blocks whose kind names a registered external tool.
// It is the fallback handler: any kind the structural handlers do not claim
// is treated as a tool invocation.
package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/braidflow/braid/pkg/execution"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
	"github.com/braidflow/braid/pkg/tools"
)

type Handler struct {
	invoker tools.Invoker
	logger  *slog.Logger
}

func NewHandler(invoker tools.Invoker, logger *slog.Logger) *Handler {
	return &Handler{
		invoker: invoker,
		logger:  logger.With("module", "tool_handler"),
	}
}

func (h *Handler) Name() string {
	return "tool"
}

// CanHandle accepts every non-structural kind. Register this handler last so
// the structural handlers win for their own kinds.
func (h *Handler) CanHandle(block *models.Block) bool {
	switch block.Kind {
	case "", models.KindFunction, models.KindRouter, models.KindCondition, models.KindLoop:
		return false
	default:
		return true
	}
}

func (h *Handler) Execute(ctx context.Context, block *models.Block, inputs map[string]any, _ protocol.RunState) (map[string]any, error) {
	params := make(map[string]any, len(inputs))
	maps.Copy(params, inputs)

	callCtx := ctx

	// Unlike function blocks, tool blocks get no implicit deadline; only a
	// declared timeout bounds the call.
	timeout, bounded := timeoutDuration(inputs["timeout"])
	if bounded {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	h.logger.DebugContext(ctx, "invoking tool",
		"block_id", block.ID,
		"tool", block.Kind)

	result, err := h.invoker.Invoke(callCtx, block.Kind, params)
	if err != nil {
		if bounded && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &execution.TimeoutError{Tool: block.Kind, Timeout: timeout}
		}

		return nil, err
	}

	if !result.Success {
		message := result.Error
		if message == "" {
			message = fmt.Sprintf("%s execution failed", block.Kind)
		}

		return nil, &execution.ToolInvocationError{Tool: block.Kind, Message: message}
	}

	return map[string]any{"response": result.Output}, nil
}

func (h *Handler) Schema() map[string]any {
	return nil
}

func timeoutDuration(value any) (time.Duration, bool) {
	switch number := value.(type) {
	case int:
		if number > 0 {
			return time.Duration(number) * time.Millisecond, true
		}
	case int64:
		if number > 0 {
			return time.Duration(number) * time.Millisecond, true
		}
	case float64:
		if number > 0 {
			return time.Duration(number) * time.Millisecond, true
		}
	}

	return 0, false
}
