// Package httptool performs HTTP requests on behalf of workflow blocks.
package httptool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/braidflow/braid/pkg/tools"
	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 30 * time.Second

type Tool struct {
	logger *slog.Logger
	client *resty.Client
}

func New(logger *slog.Logger) *Tool {
	return &Tool{
		logger: logger.With("module", "httptool"),
		client: resty.New().SetTimeout(defaultTimeout),
	}
}

func (t *Tool) Name() string {
	return "http_request"
}

// Call performs the request described by params: url (required), method
// (default GET), headers, query, body. Non-2xx responses are envelope
// failures carrying the response status and body.
func (t *Tool) Call(ctx context.Context, params map[string]any) (*tools.Result, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return &tools.Result{Success: false, Error: "url parameter is required"}, nil
	}

	method, _ := params["method"].(string)
	if method == "" {
		method = "GET"
	}

	request := t.client.R().SetContext(ctx)
	request.SetHeaders(stringMap(params["headers"]))
	request.SetQueryParams(stringMap(params["query"]))

	if body, ok := params["body"]; ok {
		request.SetBody(body)
	}

	var parsed map[string]any

	request.SetResult(&parsed).SetError(&parsed)

	response, err := request.Execute(method, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return &tools.Result{Success: false, Error: err.Error()}, nil
	}

	output := map[string]any{
		"status": response.StatusCode(),
		"body":   parsed,
	}

	if response.IsError() {
		return &tools.Result{
			Success: false,
			Output:  output,
			Error:   fmt.Sprintf("request failed with status %d", response.StatusCode()),
		}, nil
	}

	return &tools.Result{Success: true, Output: output}, nil
}

func stringMap(value any) map[string]string {
	raw, ok := value.(map[string]any)
	if !ok {
		return nil
	}

	out := make(map[string]string, len(raw))

	for key, entry := range raw {
		if str, ok := entry.(string); ok {
			out[key] = str
		}
	}

	return out
}
