package file

import (
	"testing"
	"time"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:   id,
		Name: "Sample workflow",
		Blocks: []*models.Block{
			{ID: "start", Kind: models.KindFunction, Name: "Start", Config: map[string]any{"code": "return 1"}},
		},
		Variables: map[string]string{"REGION": "eu-west-1"},
		Status:    models.WorkflowStatusActive,
	}
}

func TestWorkflowRepositorySaveStampsTimestamps(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	workflow := sampleWorkflow("wf-1")
	require.True(t, workflow.CreatedAt.IsZero())

	err := repo.Save(t.Context(), workflow)
	require.NoError(t, err)

	assert.False(t, workflow.CreatedAt.IsZero())
	assert.False(t, workflow.UpdatedAt.IsZero())

	created := workflow.CreatedAt

	err = repo.Save(t.Context(), workflow)
	require.NoError(t, err)

	assert.Equal(t, created, workflow.CreatedAt)
	assert.False(t, workflow.UpdatedAt.Before(created))
}

func TestWorkflowRepositoryRoundTrip(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	workflow := sampleWorkflow("wf-round")
	workflow.Edges = []*models.Edge{{Source: "start", Target: "start"}}

	require.NoError(t, repo.Save(t.Context(), workflow))

	loaded, err := repo.GetByID(t.Context(), "wf-round")
	require.NoError(t, err)

	assert.Equal(t, workflow.ID, loaded.ID)
	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Len(t, loaded.Blocks, 1)
	assert.Equal(t, "start", loaded.Blocks[0].ID)
	assert.Equal(t, map[string]string{"REGION": "eu-west-1"}, loaded.Variables)
}

func TestWorkflowRepositoryGetByIDNotFound(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	_, err := repo.GetByID(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepositoryRejectsUnsafeIDs(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	tests := []struct {
		name string
		id   string
	}{
		{name: "empty", id: ""},
		{name: "path traversal", id: "../escape"},
		{name: "slash", id: "a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.GetByID(t.Context(), tt.id)
			require.Error(t, err)
			assert.False(t, persistence.IsWorkflowNotFound(err))
		})
	}
}

func TestWorkflowRepositoryGetAllOrdersByCreatedAt(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	older := sampleWorkflow("wf-older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Save(t.Context(), older))

	newer := sampleWorkflow("wf-newer")
	require.NoError(t, repo.Save(t.Context(), newer))

	workflows, err := repo.GetAll(t.Context())
	require.NoError(t, err)
	require.Len(t, workflows, 2)

	assert.Equal(t, "wf-newer", workflows[0].ID)
	assert.Equal(t, "wf-older", workflows[1].ID)
}

func TestWorkflowRepositoryGetAllEmptyRoot(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	workflows, err := repo.GetAll(t.Context())
	require.NoError(t, err)
	assert.Empty(t, workflows)
}

func TestWorkflowRepositoryDeleteIsIdempotent(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	workflow := sampleWorkflow("wf-del")
	require.NoError(t, repo.Save(t.Context(), workflow))

	require.NoError(t, repo.Delete(t.Context(), "wf-del"))
	require.NoError(t, repo.Delete(t.Context(), "wf-del"))

	_, err := repo.GetByID(t.Context(), "wf-del")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}
