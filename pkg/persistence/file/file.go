// Package file provides file-based persistence for workflows and run records.
// It suits local development and single-node deployments; everything lives as
// JSON documents under one root directory.
package file

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence"
)

// Persistence implements persistence.Store using the file system.
type Persistence struct {
	root         string
	workflowRepo *WorkflowRepository
	runRepo      *RunRepository
}

var _ persistence.Store = (*Persistence)(nil)

// NewPersistence creates a new instance of Persistence with the specified root
// directory. The root may carry a file:// prefix.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		workflowRepo: NewWorkflowRepository(cleanRoot),
		runRepo:      NewRunRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return fmt.Errorf("persistence root %s: %w", fp.root, os.ErrNotExist)
	}

	return nil
}

// Workflows returns all stored workflows.
func (fp *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	return fp.workflowRepo.GetAll(ctx)
}

// WorkflowByID returns a workflow by its ID.
func (fp *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return fp.workflowRepo.GetByID(ctx, id)
}

// SaveWorkflow writes a workflow document.
func (fp *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return fp.workflowRepo.Save(ctx, workflow)
}

// DeleteWorkflow removes a workflow document. Deleting a missing workflow is
// not an error.
func (fp *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	return fp.workflowRepo.Delete(ctx, id)
}

// SaveRun writes a run record document.
func (fp *Persistence) SaveRun(ctx context.Context, record *models.RunRecord) error {
	return fp.runRepo.Save(ctx, record)
}

// RunByID returns a run record by its ID.
func (fp *Persistence) RunByID(ctx context.Context, id string) (*models.RunRecord, error) {
	return fp.runRepo.GetByID(ctx, id)
}

// RunsByWorkflow returns all run records for a workflow, most recent first.
func (fp *Persistence) RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	return fp.runRepo.GetByWorkflow(ctx, workflowID)
}
