// Package loop turns a loop block's inputs into an iteration plan consumed
// by the execution engine's loop controller.
package loop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger.With("module", "loop_handler")}
}

func (h *Handler) Name() string {
	return "loop"
}

func (h *Handler) CanHandle(block *models.Block) bool {
	return block.Kind == models.KindLoop
}

// Execute produces the loop's plan. Collection mode iterates the resolved
// items array; count mode iterates a fixed number of times with the counter
// as the item. Declaring both or neither is a block failure.
func (h *Handler) Execute(ctx context.Context, block *models.Block, inputs map[string]any, _ protocol.RunState) (map[string]any, error) {
	rawItems, hasItems := firstOf(inputs, block.Config, "items")
	rawCount, hasCount := firstOf(inputs, block.Config, "count")

	switch {
	case hasItems && hasCount:
		return nil, fmt.Errorf("loop %s: declares both items and count", block.ID)
	case hasItems:
		items, ok := rawItems.([]any)
		if !ok {
			return nil, fmt.Errorf("loop %s: items must be an array, got %T", block.ID, rawItems)
		}

		h.logger.DebugContext(ctx, "loop planned",
			"block_id", block.ID,
			"mode", models.LoopModeCollection,
			"items", len(items))

		return map[string]any{
			"mode":  models.LoopModeCollection,
			"items": items,
		}, nil
	case hasCount:
		count, ok := asInt(rawCount)
		if !ok || count < 0 {
			return nil, fmt.Errorf("loop %s: count must be a non-negative number, got %v", block.ID, rawCount)
		}

		h.logger.DebugContext(ctx, "loop planned",
			"block_id", block.ID,
			"mode", models.LoopModeCount,
			"count", count)

		return map[string]any{
			"mode":  models.LoopModeCount,
			"count": count,
		}, nil
	default:
		return nil, fmt.Errorf("loop %s: declares neither items nor count", block.ID)
	}
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type":        "array",
				"description": "Static collection to iterate when the loop's inputs do not provide one.",
			},
			"count": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"description": "Fixed number of iterations; the counter is bound as the item.",
			},
		},
	}
}

// firstOf prefers the resolved inputs over static config so references like
// {fetch.response.items} win over an authored fallback.
func firstOf(inputs, config map[string]any, key string) (any, bool) {
	if value, ok := inputs[key]; ok {
		return value, true
	}

	value, ok := config[key]

	return value, ok
}

func asInt(value any) (int, bool) {
	switch number := value.(type) {
	case int:
		return number, true
	case int64:
		return int(number), true
	case float64:
		return int(number), true
	default:
		return 0, false
	}
}
