// Package router selects one labeled branch out of many by evaluating route
// expressions in order.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/braidflow/braid/pkg/expression"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

type route struct {
	Label string
	When  string
}

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger.With("module", "router_handler")}
}

func (h *Handler) Name() string {
	return "router"
}

func (h *Handler) CanHandle(block *models.Block) bool {
	return block.Kind == models.KindRouter
}

// Execute evaluates each route's when-expression against the run state and
// selects the first that holds. When none match the configured default
// branch is selected; a router with neither fails the block.
func (h *Handler) Execute(ctx context.Context, block *models.Block, inputs map[string]any, state protocol.RunState) (map[string]any, error) {
	routes, fallback, err := parseConfig(block.Config)
	if err != nil {
		return nil, fmt.Errorf("router %s: %w", block.ID, err)
	}

	env := expression.Env{
		Inputs: inputs,
		Blocks: state.BlockStates(),
		Vars:   state.EnvironmentVariables(),
	}

	for _, candidate := range routes {
		matched, err := expression.EvaluateBool(candidate.When, env)
		if err != nil {
			return nil, fmt.Errorf("router %s route %q: %w", block.ID, candidate.Label, err)
		}

		if matched {
			h.logger.DebugContext(ctx, "route matched",
				"block_id", block.ID,
				"branch", candidate.Label)

			return map[string]any{models.OutputKeyBranch: candidate.Label}, nil
		}
	}

	if fallback != "" {
		return map[string]any{models.OutputKeyBranch: fallback}, nil
	}

	return nil, fmt.Errorf("router %s: no route matched and no default branch configured", block.ID)
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"routes": map[string]any{
				"type":        "array",
				"minItems":    1,
				"description": "Candidate branches, evaluated in order.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"label": map[string]any{
							"type":        "string",
							"description": "Branch label matched against outgoing edge labels.",
						},
						"when": map[string]any{
							"type":        "string",
							"description": "Boolean expression over inputs, blocks and env.",
						},
					},
					"required": []string{"label", "when"},
				},
			},
			"default": map[string]any{
				"type":        "string",
				"description": "Branch selected when no route matches.",
			},
		},
		"required": []string{"routes"},
	}
}

func parseConfig(config map[string]any) ([]route, string, error) {
	rawRoutes, ok := config["routes"].([]any)
	if !ok || len(rawRoutes) == 0 {
		return nil, "", fmt.Errorf("config declares no routes")
	}

	routes := make([]route, 0, len(rawRoutes))

	for i, raw := range rawRoutes {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("route %d is not an object", i)
		}

		label, _ := entry["label"].(string)
		when, _ := entry["when"].(string)

		if label == "" || when == "" {
			return nil, "", fmt.Errorf("route %d needs both label and when", i)
		}

		routes = append(routes, route{Label: label, When: when})
	}

	fallback, _ := config["default"].(string)

	return routes, fallback, nil
}
