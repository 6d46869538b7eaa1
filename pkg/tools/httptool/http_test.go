package httptool_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/braidflow/braid/pkg/tools/httptool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "abc", r.Header.Get("X-Token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tool := httptool.New(slog.Default())

	result, err := tool.Call(t.Context(), map[string]any{
		"url":     server.URL,
		"method":  "POST",
		"headers": map[string]any{"X-Token": "abc"},
		"body":    map[string]any{"n": 1},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 200, result.Output["status"])

	body, ok := result.Output["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, body["ok"])
}

func TestCallErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"reason":"upstream down"}`))
	}))
	defer server.Close()

	tool := httptool.New(slog.Default())

	result, err := tool.Call(t.Context(), map[string]any{"url": server.URL})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "request failed with status 502", result.Error)
	assert.Equal(t, 502, result.Output["status"])
}

func TestCallMissingURL(t *testing.T) {
	tool := httptool.New(slog.Default())

	result, err := tool.Call(t.Context(), map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "url parameter is required", result.Error)
}
