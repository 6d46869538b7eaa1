package tools_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/braidflow/braid/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{}

func (echoTool) Name() string { return "echo" }

func (echoTool) Call(_ context.Context, params map[string]any) (*tools.Result, error) {
	return &tools.Result{Success: true, Output: params}, nil
}

func TestRegistryInvoke(t *testing.T) {
	reg := tools.NewRegistry(slog.Default())
	reg.Register(echoTool{})

	result, err := reg.Invoke(t.Context(), "echo", map[string]any{"value": 42})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 42, result.Output["value"])
}

func TestRegistryInvokeUnknownTool(t *testing.T) {
	reg := tools.NewRegistry(slog.Default())

	_, err := reg.Invoke(t.Context(), "missing", nil)
	require.ErrorIs(t, err, tools.ErrToolNotFound)
}

func TestRegistryInvokeCancelledContext(t *testing.T) {
	reg := tools.NewRegistry(slog.Default())
	reg.Register(echoTool{})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := reg.Invoke(ctx, "echo", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRegistryNames(t *testing.T) {
	reg := tools.NewRegistry(slog.Default())
	assert.False(t, reg.Has("echo"))

	reg.Register(echoTool{})
	assert.True(t, reg.Has("echo"))
	assert.Equal(t, []string{"echo"}, reg.Names())
}
