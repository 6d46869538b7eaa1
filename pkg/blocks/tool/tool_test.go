package tool

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidflow/braid/pkg/execution"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/tools"
)

type stubInvoker struct {
	lastTool   string
	lastParams map[string]any
	result     *tools.Result
	err        error
	delay      time.Duration
}

func (s *stubInvoker) Invoke(ctx context.Context, toolName string, params map[string]any) (*tools.Result, error) {
	s.lastTool = toolName
	s.lastParams = params

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return s.result, s.err
}

type stubState struct{}

func (stubState) RunID() string                           { return "run-test" }
func (stubState) WorkflowID() string                      { return "wf-1" }
func (stubState) BlockStates() map[string]map[string]any  { return nil }
func (stubState) EnvironmentVariables() map[string]string { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestCanHandleClaimsOnlyToolKinds(t *testing.T) {
	handler := NewHandler(&stubInvoker{}, testLogger())

	assert.True(t, handler.CanHandle(&models.Block{Kind: "http_request"}))
	assert.True(t, handler.CanHandle(&models.Block{Kind: "slack_notify"}))
	assert.False(t, handler.CanHandle(&models.Block{Kind: models.KindFunction}))
	assert.False(t, handler.CanHandle(&models.Block{Kind: models.KindRouter}))
	assert.False(t, handler.CanHandle(&models.Block{Kind: models.KindCondition}))
	assert.False(t, handler.CanHandle(&models.Block{Kind: models.KindLoop}))
	assert.False(t, handler.CanHandle(&models.Block{Kind: ""}))
}

func TestExecuteInvokesToolNamedByKind(t *testing.T) {
	invoker := &stubInvoker{
		result: &tools.Result{Success: true, Output: map[string]any{"status": 200}},
	}
	handler := NewHandler(invoker, testLogger())
	block := &models.Block{ID: "call", Kind: "http_request", Enabled: true}

	inputs := map[string]any{"url": "https://api.internal/ping"}

	output, err := handler.Execute(context.Background(), block, inputs, stubState{})
	require.NoError(t, err)

	assert.Equal(t, "http_request", invoker.lastTool)
	assert.Equal(t, "https://api.internal/ping", invoker.lastParams["url"])
	assert.Equal(t, map[string]any{"response": map[string]any{"status": 200}}, output)
}

func TestExecuteFailureEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		result   *tools.Result
		expected string
	}{
		{
			name:     "message surfaces verbatim",
			result:   &tools.Result{Success: false, Error: "connection refused"},
			expected: "connection refused",
		},
		{
			name:     "missing message names the tool",
			result:   &tools.Result{Success: false},
			expected: "http_request execution failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(&stubInvoker{result: tt.result}, testLogger())
			block := &models.Block{ID: "call", Kind: "http_request", Enabled: true}

			_, err := handler.Execute(context.Background(), block, nil, stubState{})
			require.Error(t, err)

			assert.ErrorIs(t, err, execution.ErrToolInvocation)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestExecuteHonorsDeclaredTimeout(t *testing.T) {
	invoker := &stubInvoker{
		result: &tools.Result{Success: true},
		delay:  300 * time.Millisecond,
	}
	handler := NewHandler(invoker, testLogger())
	block := &models.Block{ID: "call", Kind: "http_request", Enabled: true}

	_, err := handler.Execute(context.Background(), block, map[string]any{"timeout": 20}, stubState{})
	require.Error(t, err)

	assert.ErrorIs(t, err, execution.ErrToolTimeout)
}

func TestExecuteWithoutTimeoutWaits(t *testing.T) {
	invoker := &stubInvoker{
		result: &tools.Result{Success: true, Output: map[string]any{"ok": true}},
		delay:  50 * time.Millisecond,
	}
	handler := NewHandler(invoker, testLogger())
	block := &models.Block{ID: "call", Kind: "slow_tool", Enabled: true}

	output, err := handler.Execute(context.Background(), block, nil, stubState{})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"response": map[string]any{"ok": true}}, output)
}
