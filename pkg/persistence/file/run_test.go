package file

import (
	"testing"
	"time"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun(id, workflowID string, startedAt time.Time) *models.RunRecord {
	return &models.RunRecord{
		ID:         id,
		WorkflowID: workflowID,
		Status:     models.RunStatusCompleted,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(2 * time.Second),
		BlockStates: map[string]map[string]any{
			"start": {"response": map[string]any{"ok": true}},
		},
		Logs: []models.BlockLog{
			{BlockID: "start", BlockKind: models.KindFunction, Success: true},
		},
	}
}

func TestRunRepositoryRoundTrip(t *testing.T) {
	repo := NewRunRepository(t.TempDir())

	record := sampleRun("run-1", "wf-1", time.Now().UTC())
	require.NoError(t, repo.Save(t.Context(), record))

	loaded, err := repo.GetByID(t.Context(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, record.ID, loaded.ID)
	assert.Equal(t, record.WorkflowID, loaded.WorkflowID)
	assert.Equal(t, models.RunStatusCompleted, loaded.Status)
	require.Len(t, loaded.Logs, 1)
	assert.Equal(t, "start", loaded.Logs[0].BlockID)
	assert.True(t, loaded.Logs[0].Success)
}

func TestRunRepositoryGetByIDNotFound(t *testing.T) {
	repo := NewRunRepository(t.TempDir())

	_, err := repo.GetByID(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestRunRepositoryGetByWorkflowFiltersAndOrders(t *testing.T) {
	repo := NewRunRepository(t.TempDir())

	now := time.Now().UTC()

	require.NoError(t, repo.Save(t.Context(), sampleRun("run-a", "wf-1", now.Add(-2*time.Hour))))
	require.NoError(t, repo.Save(t.Context(), sampleRun("run-b", "wf-1", now)))
	require.NoError(t, repo.Save(t.Context(), sampleRun("run-c", "wf-2", now.Add(-time.Hour))))

	records, err := repo.GetByWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "run-b", records[0].ID)
	assert.Equal(t, "run-a", records[1].ID)
}

func TestRunRepositoryGetByWorkflowEmpty(t *testing.T) {
	repo := NewRunRepository(t.TempDir())

	records, err := repo.GetByWorkflow(t.Context(), "wf-none")
	require.NoError(t, err)
	assert.Empty(t, records)
}
