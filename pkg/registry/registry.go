// Package registry holds the fixed, ordered list of block handlers.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

// HandlerNotFoundError reports that no registered handler claims a block
// kind. This is a configuration error, not a runtime condition.
type HandlerNotFoundError struct {
	BlockID string
	Kind    string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no handler for block %q of kind %q", e.BlockID, e.Kind)
}

// Registry dispatches blocks to handlers. Handlers are asked CanHandle in
// registration order and the first match wins, so registration order is the
// dispatch priority. The set is closed: handlers are registered explicitly
// at process start, never at run time.
type Registry struct {
	logger   *slog.Logger
	handlers []protocol.Handler
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "registry"),
		handlers: make([]protocol.Handler, 0),
	}
}

// Register appends a handler at the lowest priority so far.
func (r *Registry) Register(handler protocol.Handler) {
	r.handlers = append(r.handlers, handler)
}

// Resolve returns the first handler claiming the block's kind.
func (r *Registry) Resolve(block *models.Block) (protocol.Handler, error) {
	for _, handler := range r.handlers {
		if handler.CanHandle(block) {
			return handler, nil
		}
	}

	return nil, &HandlerNotFoundError{BlockID: block.ID, Kind: block.Kind}
}

// Handlers returns the registered handlers in priority order.
func (r *Registry) Handlers() []protocol.Handler {
	out := make([]protocol.Handler, len(r.handlers))
	copy(out, r.handlers)

	return out
}

// HealthCheck reports the registered handler names, keyed for the health
// endpoint.
func (r *Registry) HealthCheck() (map[string]any, bool) {
	names := make([]string, 0, len(r.handlers))
	for _, handler := range r.handlers {
		names = append(names, handler.Name())
	}

	return map[string]any{"handlers": names}, len(names) > 0
}
