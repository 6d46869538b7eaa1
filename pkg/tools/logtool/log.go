// Package logtool emits structured log lines from workflow blocks.
package logtool

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/braidflow/braid/pkg/tools"
)

type Tool struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Tool {
	return &Tool{logger: logger.With("module", "logtool")}
}

func (t *Tool) Name() string {
	return "log"
}

func (t *Tool) Call(ctx context.Context, params map[string]any) (*tools.Result, error) {
	message := fmt.Sprintf("%v", params["message"])
	level, _ := params["level"].(string)

	switch level {
	case "debug":
		t.logger.DebugContext(ctx, message)
	case "warn":
		t.logger.WarnContext(ctx, message)
	case "error":
		t.logger.ErrorContext(ctx, message)
	default:
		t.logger.InfoContext(ctx, message)
	}

	return &tools.Result{
		Success: true,
		Output:  map[string]any{"message": message},
	}, nil
}
