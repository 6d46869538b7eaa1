// Package persistence provides the data storage abstraction layer for
// workflows and run records.
package persistence

import (
	"context"

	"github.com/braidflow/braid/pkg/models"
)

// Persistence stores workflow definitions.
type Persistence interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// RunPersistence stores run records. Workers write a record once per run,
// after the run settles; the API reads them back.
type RunPersistence interface {
	SaveRun(ctx context.Context, record *models.RunRecord) error
	RunByID(ctx context.Context, id string) (*models.RunRecord, error)
	RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error)
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// Store is the full storage surface. Both backends implement it over a single
// connection, so one Close tears everything down.
type Store interface {
	Persistence
	RunPersistence
}
