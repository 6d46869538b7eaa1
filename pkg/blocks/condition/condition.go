// Package condition evaluates a boolean expression and reports the true or
// false branch.
package condition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/braidflow/braid/pkg/expression"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger.With("module", "condition_handler")}
}

func (h *Handler) Name() string {
	return "condition"
}

func (h *Handler) CanHandle(block *models.Block) bool {
	return block.Kind == models.KindCondition
}

func (h *Handler) Execute(ctx context.Context, block *models.Block, inputs map[string]any, state protocol.RunState) (map[string]any, error) {
	expr, _ := block.Config["expression"].(string)
	if expr == "" {
		return nil, fmt.Errorf("condition %s: config declares no expression", block.ID)
	}

	env := expression.Env{
		Inputs: inputs,
		Blocks: state.BlockStates(),
		Vars:   state.EnvironmentVariables(),
	}

	value, err := expression.EvaluateBool(expr, env)
	if err != nil {
		return nil, fmt.Errorf("condition %s: %w", block.ID, err)
	}

	branch := models.BranchFalse
	if value {
		branch = models.BranchTrue
	}

	h.logger.DebugContext(ctx, "condition evaluated",
		"block_id", block.ID,
		"result", value)

	return map[string]any{
		models.OutputKeyBranch: branch,
		"result":               value,
	}, nil
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Boolean expression over inputs, blocks and env.",
				"examples": []string{
					"blocks.score.response.value > 80",
					"inputs.enabled == true",
				},
			},
		},
		"required": []string{"expression"},
	}
}
