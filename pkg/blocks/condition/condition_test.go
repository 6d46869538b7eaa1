package condition

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidflow/braid/pkg/models"
)

type stubState struct {
	blocks map[string]map[string]any
	env    map[string]string
}

func (s *stubState) RunID() string                           { return "run-test" }
func (s *stubState) WorkflowID() string                      { return "wf-1" }
func (s *stubState) BlockStates() map[string]map[string]any  { return s.blocks }
func (s *stubState) EnvironmentVariables() map[string]string { return s.env }

func conditionBlock(expr string) *models.Block {
	return &models.Block{
		ID:      "check",
		Kind:    models.KindCondition,
		Config:  map[string]any{"expression": expr},
		Enabled: true,
	}
}

func TestExecuteReportsBranch(t *testing.T) {
	handler := NewHandler(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	tests := []struct {
		name     string
		expr     string
		inputs   map[string]any
		expected string
	}{
		{
			name:     "true branch",
			expr:     "inputs.amount > 100",
			inputs:   map[string]any{"amount": 250},
			expected: models.BranchTrue,
		},
		{
			name:     "false branch",
			expr:     "inputs.amount > 100",
			inputs:   map[string]any{"amount": 50},
			expected: models.BranchFalse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := handler.Execute(context.Background(), conditionBlock(tt.expr), tt.inputs, &stubState{})
			require.NoError(t, err)

			assert.Equal(t, tt.expected, output[models.OutputKeyBranch])
			assert.Equal(t, tt.expected == models.BranchTrue, output["result"])
		})
	}
}

func TestExecuteReadsBlockStatesAndEnv(t *testing.T) {
	handler := NewHandler(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	state := &stubState{
		blocks: map[string]map[string]any{
			"fetch": {"response": map[string]any{"count": 3}},
		},
		env: map[string]string{"REGION": "eu-west-1"},
	}

	block := conditionBlock(`blocks.fetch.response.count > 0 && env.REGION == "eu-west-1"`)

	output, err := handler.Execute(context.Background(), block, nil, state)
	require.NoError(t, err)

	assert.Equal(t, models.BranchTrue, output[models.OutputKeyBranch])
}

func TestExecuteRejectsNonBoolean(t *testing.T) {
	handler := NewHandler(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	_, err := handler.Execute(context.Background(), conditionBlock("1 + 1"), nil, &stubState{})
	require.Error(t, err)

	assert.Contains(t, err.Error(), "expected a boolean")
}

func TestExecuteRequiresExpression(t *testing.T) {
	handler := NewHandler(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	block := &models.Block{ID: "check", Kind: models.KindCondition, Config: map[string]any{}, Enabled: true}

	_, err := handler.Execute(context.Background(), block, nil, &stubState{})
	assert.Error(t, err)
}
