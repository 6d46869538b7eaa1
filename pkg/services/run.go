package services

import (
	"context"
	"fmt"

	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/events"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence"
	"github.com/braidflow/braid/pkg/validation"
	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run record is not found.
var ErrRunNotFound = persistence.ErrRunNotFound

// APISourceID marks run requests that came in through the HTTP API.
const APISourceID = "api"

// Run triggers workflow runs and reads back their records. Triggering only
// publishes a request; a worker picks it up and writes the record once the
// run settles.
type Run struct {
	workflows persistence.Persistence
	runs      persistence.RunPersistence
	validator *validation.Validator
	eventBus  eventbus.EventBus
}

// NewRun creates a new run service.
func NewRun(
	workflows persistence.Persistence,
	runs persistence.RunPersistence,
	validator *validation.Validator,
	eventBus eventbus.EventBus,
) *Run {
	return &Run{
		workflows: workflows,
		runs:      runs,
		validator: validator,
		eventBus:  eventBus,
	}
}

// Trigger publishes a run request for a stored workflow and returns the run
// ID the worker will record under. Variables override workflow variables for
// this run only.
func (r *Run) Trigger(ctx context.Context, workflowID string, variables map[string]string) (string, error) {
	workflow, err := r.workflows.WorkflowByID(ctx, workflowID)
	if err != nil {
		return "", err
	}

	if workflow.Status != models.WorkflowStatusActive {
		return "", fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowInactive)
	}

	// Stored workflows can predate validation rules or arrive through the
	// file backend, so the graph is checked again at trigger time.
	if err := r.validator.Check(workflow); err != nil {
		return "", NewValidationError("Trigger", "INVALID_WORKFLOW", err.Error(), ErrWorkflowInvalid)
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate run id: %w", err)
	}

	event := events.RunRequested{
		BaseEvent: events.NewBaseEvent(events.RunRequestedEvent, workflowID),
		RunID:     runID.String(),
		SourceID:  APISourceID,
		Variables: variables,
	}

	if err := r.eventBus.Publish(ctx, workflowID, event); err != nil {
		return "", fmt.Errorf("failed to publish run request: %w", err)
	}

	return runID.String(), nil
}

// ByID retrieves a run record by its ID.
func (r *Run) ByID(ctx context.Context, id string) (*models.RunRecord, error) {
	return r.runs.RunByID(ctx, id)
}

// ByWorkflow retrieves the run records for a workflow, newest first. Returns
// an empty slice for workflows that never ran.
func (r *Run) ByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	return r.runs.RunsByWorkflow(ctx, workflowID)
}
