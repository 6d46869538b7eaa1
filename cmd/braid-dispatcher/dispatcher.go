// Package main implements the Braid dispatcher: it hosts the run-request
// sources (schedule, queue) that feed the event bus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/braidflow/braid/pkg/sources"
)

type Dispatcher struct {
	id      string
	logger  *slog.Logger
	sources []sources.Source
}

func NewDispatcher(id string, logger *slog.Logger, srcs ...sources.Source) *Dispatcher {
	return &Dispatcher{
		id:      id,
		logger:  logger.With("module", "braid-dispatcher", "dispatcher_id", id),
		sources: srcs,
	}
}

// Start brings every source up and blocks until the process is signalled or
// the context is cancelled. A source that fails to start takes the dispatcher
// down; sources already running are stopped on the way out.
func (d *Dispatcher) Start(ctx context.Context) error {
	var started []sources.Source

	for _, source := range d.sources {
		d.logger.InfoContext(ctx, "Starting source", "source", source.Name())

		if err := source.Start(ctx); err != nil {
			d.stop(ctx, started)

			return fmt.Errorf("failed to start %s source: %w", source.Name(), err)
		}

		started = append(started, source)
	}

	d.logger.InfoContext(ctx, "Dispatcher started", "sources", len(started))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		d.logger.InfoContext(ctx, "Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	d.stop(ctx, started)

	return nil
}

func (d *Dispatcher) stop(ctx context.Context, started []sources.Source) {
	for _, source := range started {
		if err := source.Stop(ctx); err != nil {
			d.logger.ErrorContext(ctx, "Failed to stop source", "source", source.Name(), "error", err)
		}
	}
}
