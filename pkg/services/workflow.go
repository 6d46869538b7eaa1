package services

import (
	"context"
	"fmt"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence"
	"github.com/braidflow/braid/pkg/validation"
	"github.com/google/uuid"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow manages stored workflow definitions. Every write passes graph
// validation before it reaches persistence.
type Workflow struct {
	persistence persistence.Persistence
	validator   *validation.Validator
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, validator *validation.Validator) *Workflow {
	return &Workflow{
		persistence: persistence,
		validator:   validator,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains filters for listing workflows.
type ListWorkflowsRequest struct {
	Status *models.WorkflowStatus
	Owner  string
}

// List retrieves workflows, optionally filtered by status and owner.
func (w *Workflow) List(ctx context.Context, req ListWorkflowsRequest) ([]*models.Workflow, error) {
	if req.Status != nil && !validStatus(*req.Status) {
		return nil, NewValidationError(
			"List",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status %q, allowed: active, inactive", *req.Status),
			ErrInvalidStatus,
		)
	}

	workflows, err := w.persistence.Workflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	filtered := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if req.Status != nil && workflow.Status != *req.Status {
			continue
		}

		if req.Owner != "" && workflow.Owner != req.Owner {
			continue
		}

		filtered = append(filtered, workflow)
	}

	return filtered, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowByID(ctx, id)
}

// Create validates and stores a new workflow. The ID is always generated
// server-side.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate workflow id: %w", err)
	}

	workflow.ID = id.String()

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusActive
	}

	if !validStatus(workflow.Status) {
		return nil, NewValidationError(
			"Create",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status %q, allowed: active, inactive", workflow.Status),
			ErrInvalidStatus,
		)
	}

	if err := w.validator.Check(workflow); err != nil {
		return nil, NewValidationError("Create", "INVALID_WORKFLOW", err.Error(), ErrWorkflowInvalid)
	}

	if err := w.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update validates and stores a modified workflow under an existing ID.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt

	if workflow.Status == "" {
		workflow.Status = existing.Status
	}

	if !validStatus(workflow.Status) {
		return nil, NewValidationError(
			"Update",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status %q, allowed: active, inactive", workflow.Status),
			ErrInvalidStatus,
		)
	}

	if err := w.validator.Check(workflow); err != nil {
		return nil, NewValidationError("Update", "INVALID_WORKFLOW", err.Error(), ErrWorkflowInvalid)
	}

	if err := w.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.persistence.WorkflowByID(ctx, workflowID); err != nil {
		return err
	}

	if err := w.persistence.DeleteWorkflow(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

func validStatus(status models.WorkflowStatus) bool {
	return status == models.WorkflowStatusActive || status == models.WorkflowStatusInactive
}
