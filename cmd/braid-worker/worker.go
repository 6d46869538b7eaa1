// Package main implements the Braid worker: it consumes run requests from
// the event bus, executes the workflow graph, records the run, and reports
// the outcome back on the bus.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/events"
	"github.com/braidflow/braid/pkg/execution"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence"
	"github.com/braidflow/braid/pkg/registry"
)

type Worker struct {
	id       string
	logger   *slog.Logger
	store    persistence.Store
	registry *registry.Registry
	eventBus eventbus.EventBus
}

func NewWorker(
	id string,
	store persistence.Store,
	eventBus eventbus.EventBus,
	registry *registry.Registry,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:       id,
		logger:   logger.With("module", "braid-worker", "worker_id", id),
		store:    store,
		registry: registry,
		eventBus: eventBus,
	}
}

// Start subscribes to run requests and blocks until the process is signalled
// or the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker", "worker_id", w.id)

	err := w.eventBus.Handle(events.RunRequestedEvent, w.handleRunRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker...")
	case <-ctx.Done():
	}

	return nil
}

func (w *Worker) handleRunRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.RunRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RunRequested")

		return nil
	}

	// The API hands out the run ID with its 202 response; every other source
	// leaves it for the worker to generate.
	runID := request.RunID
	if runID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}

		runID = id.String()
	}

	logger := w.logger.With(
		"workflow_id", request.WorkflowID,
		"run_id", runID,
		"source_id", request.SourceID,
	)
	logger.InfoContext(ctx, "Processing run request")

	workflow, err := w.store.WorkflowByID(ctx, request.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			logger.WarnContext(ctx, "Dropping run request for unknown workflow")

			return nil
		}

		logger.ErrorContext(ctx, "Failed to fetch workflow", "error", err)

		return err
	}

	// Queue producers and stale requests can name workflows that were
	// deactivated after the request was enqueued.
	if workflow.Status != models.WorkflowStatusActive {
		logger.WarnContext(ctx, "Dropping run request for inactive workflow", "status", workflow.Status)

		return nil
	}

	w.execute(ctx, logger, runID, workflow, request)

	// A failed run is still a handled request: the outcome lives in the run
	// record and the failure event, so the message is never redelivered.
	return nil
}

func (w *Worker) execute(ctx context.Context, logger *slog.Logger, runID string, workflow *models.Workflow, request *events.RunRequested) {
	started := events.RunStarted{
		BaseEvent:    events.NewBaseEvent(events.RunStartedEvent, workflow.ID),
		RunID:        runID,
		WorkflowName: workflow.Name,
	}
	started.WorkerID = w.id

	if err := w.eventBus.Publish(ctx, workflow.ID, started); err != nil {
		logger.ErrorContext(ctx, "Failed to publish run started event", "error", err)
	}

	// One executor per run: the block observer below captures this run's
	// workflow, so the hook cannot be shared across concurrent runs.
	executor := execution.NewExecutor(w.registry, w.logger)
	executor.OnBlockFinished = func(ctx context.Context, runID string, entry models.BlockLog) {
		finished := events.BlockFinished{
			BaseEvent:  events.NewBaseEvent(events.BlockFinishedEvent, workflow.ID),
			RunID:      runID,
			BlockID:    entry.BlockID,
			BlockKind:  entry.BlockKind,
			Success:    entry.Success,
			Error:      entry.Error,
			Iteration:  entry.Iteration,
			DurationMs: entry.FinishedAt.Sub(entry.StartedAt).Milliseconds(),
		}
		finished.WorkerID = w.id

		if err := w.eventBus.Publish(ctx, workflow.ID, finished); err != nil {
			logger.ErrorContext(ctx, "Failed to publish block finished event", "error", err)
		}
	}

	record, runErr := executor.RunWithID(ctx, runID, workflow, request.Variables)

	if err := w.store.SaveRun(ctx, record); err != nil {
		logger.ErrorContext(ctx, "Failed to save run record", "error", err)
	}

	w.publishOutcome(ctx, logger, workflow, record)

	if runErr != nil {
		logger.WarnContext(ctx, "Run did not complete", "status", record.Status, "error", record.Error)
	}
}

// publishOutcome reports the settled run back on the bus, one event per run.
func (w *Worker) publishOutcome(ctx context.Context, logger *slog.Logger, workflow *models.Workflow, record *models.RunRecord) {
	durationMs := record.FinishedAt.Sub(record.StartedAt).Milliseconds()

	var event eventbus.Event

	switch record.Status {
	case models.RunStatusCompleted:
		results := make(map[string]any, len(record.BlockStates))
		for blockID, state := range record.BlockStates {
			results[blockID] = state
		}

		finished := events.RunFinished{
			BaseEvent:      events.NewBaseEvent(events.RunFinishedEvent, workflow.ID),
			RunID:          record.ID,
			Status:         string(record.Status),
			DurationMs:     durationMs,
			BlocksExecuted: len(record.Logs),
			Results:        results,
		}
		finished.WorkerID = w.id
		event = finished
	case models.RunStatusCancelled:
		cancelled := events.RunCancelled{
			BaseEvent:      events.NewBaseEvent(events.RunCancelledEvent, workflow.ID),
			RunID:          record.ID,
			Status:         string(record.Status),
			Reason:         record.Error,
			DurationMs:     durationMs,
			BlocksExecuted: len(record.Logs),
		}
		cancelled.WorkerID = w.id
		event = cancelled
	default:
		failed := events.RunFailed{
			BaseEvent:      events.NewBaseEvent(events.RunFailedEvent, workflow.ID),
			RunID:          record.ID,
			Status:         string(record.Status),
			Error:          record.Error,
			DurationMs:     durationMs,
			BlocksExecuted: len(record.Logs),
		}
		failed.WorkerID = w.id
		event = failed
	}

	if err := w.eventBus.Publish(ctx, workflow.ID, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish run outcome event", "error", err)
	}
}
