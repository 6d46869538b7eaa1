// Package functionrunner is the engine-side client for the external code
// sandbox. The sandbox itself is out of scope; this tool forwards the code
// payload over HTTP and relays the sandbox's envelope.
package functionrunner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/braidflow/braid/pkg/tools"
	"github.com/go-resty/resty/v2"
)

type Tool struct {
	logger  *slog.Logger
	client  *resty.Client
	baseURL string
}

// New creates the function_execute tool pointing at a sandbox runner URL,
// e.g. http://runner:8090/execute.
func New(logger *slog.Logger, baseURL string) *Tool {
	return &Tool{
		logger:  logger.With("module", "functionrunner"),
		client:  resty.New(),
		baseURL: baseURL,
	}
}

func (t *Tool) Name() string {
	return "function_execute"
}

// Call forwards params to the sandbox unchanged. The per-call timeout is
// enforced by the caller through ctx; the sandbox receives the timeout
// parameter as its own budget.
func (t *Tool) Call(ctx context.Context, params map[string]any) (*tools.Result, error) {
	var envelope tools.Result

	response, err := t.client.R().
		SetContext(ctx).
		SetBody(params).
		SetResult(&envelope).
		SetError(&envelope).
		Post(t.baseURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("function runner unreachable: %w", err)
	}

	if response.IsError() && envelope.Error == "" && !envelope.Success {
		envelope.Error = fmt.Sprintf("function runner returned status %d", response.StatusCode())
	}

	return &envelope, nil
}
