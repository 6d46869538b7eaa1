package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence"
	"github.com/braidflow/braid/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"workflow_runs", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("braid_test"),
			postgres.WithUsername("braid"),
			postgres.WithPassword("braid"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func testWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:   id,
		Name: "Postgres test workflow",
		Blocks: []*models.Block{
			{ID: "fetch", Kind: "http_request", Name: "Fetch", Config: map[string]any{"url": "https://example.com"}},
			{ID: "check", Kind: models.KindCondition, Name: "Check", Config: map[string]any{"expression": "true"}},
		},
		Edges: []*models.Edge{
			{Source: "fetch", Target: "check"},
		},
		Variables: map[string]string{"API_KEY": "secret"},
		Schedule:  "*/5 * * * *",
		Status:    models.WorkflowStatusActive,
	}
}

func testRun(id, workflowID string, startedAt time.Time) *models.RunRecord {
	return &models.RunRecord{
		ID:         id,
		WorkflowID: workflowID,
		Status:     models.RunStatusCompleted,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(3 * time.Second),
		BlockStates: map[string]map[string]any{
			"fetch": {"response": map[string]any{"status": float64(200)}},
		},
		Logs: []models.BlockLog{
			{BlockID: "fetch", BlockKind: "http_request", Success: true},
			{BlockID: "check", BlockKind: models.KindCondition, Success: true},
		},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	for _, table := range []string{"workflows", "workflow_runs", "schema_migrations"} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	require.NoError(t, store.HealthCheck(ctx))
}

func TestWorkflow_SaveAndGet(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testWorkflow("wf-pg-1")
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	loaded, err := store.WorkflowByID(ctx, "wf-pg-1")
	require.NoError(t, err)

	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Equal(t, models.WorkflowStatusActive, loaded.Status)
	assert.Equal(t, "*/5 * * * *", loaded.Schedule)
	require.Len(t, loaded.Blocks, 2)
	assert.Equal(t, "fetch", loaded.Blocks[0].ID)
	assert.Equal(t, "https://example.com", loaded.Blocks[0].Config["url"])
	require.Len(t, loaded.Edges, 1)
	assert.Equal(t, "check", loaded.Edges[0].Target)
	assert.Equal(t, map[string]string{"API_KEY": "secret"}, loaded.Variables)
	assert.WithinDuration(t, workflow.CreatedAt, loaded.CreatedAt, time.Second)
}

func TestWorkflow_SaveGeneratesID(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testWorkflow("")
	require.NoError(t, store.SaveWorkflow(ctx, workflow))
	assert.NotEmpty(t, workflow.ID)

	_, err := store.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
}

func TestWorkflow_SaveUpserts(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testWorkflow("wf-pg-up")
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	workflow.Name = "Renamed workflow"
	workflow.Blocks = workflow.Blocks[:1]
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	loaded, err := store.WorkflowByID(ctx, "wf-pg-up")
	require.NoError(t, err)
	assert.Equal(t, "Renamed workflow", loaded.Name)
	assert.Len(t, loaded.Blocks, 1)
}

func TestWorkflow_NotFound(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	_, err := store.WorkflowByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflow_SoftDelete(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testWorkflow("wf-pg-del")
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	require.NoError(t, store.DeleteWorkflow(ctx, "wf-pg-del"))
	require.NoError(t, store.DeleteWorkflow(ctx, "wf-pg-del"))

	_, err := store.WorkflowByID(ctx, "wf-pg-del")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	workflows, err := store.Workflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, workflows)
}

func TestWorkflows_OrderedByCreatedAt(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	older := testWorkflow("wf-pg-older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.SaveWorkflow(ctx, older))

	newer := testWorkflow("wf-pg-newer")
	require.NoError(t, store.SaveWorkflow(ctx, newer))

	workflows, err := store.Workflows(ctx)
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "wf-pg-newer", workflows[0].ID)
	assert.Equal(t, "wf-pg-older", workflows[1].ID)
}

func TestRun_SaveAndGet(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	record := testRun("run-pg-1", "wf-pg-1", time.Now().UTC())
	require.NoError(t, store.SaveRun(ctx, record))

	loaded, err := store.RunByID(ctx, "run-pg-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, loaded.Status)
	assert.Equal(t, "wf-pg-1", loaded.WorkflowID)
	require.Len(t, loaded.Logs, 2)
	assert.Equal(t, "fetch", loaded.Logs[0].BlockID)
	assert.Equal(t, "check", loaded.Logs[1].BlockID)
	assert.Equal(t, map[string]any{"status": float64(200)}, loaded.BlockStates["fetch"]["response"])
	assert.WithinDuration(t, record.StartedAt, loaded.StartedAt, time.Second)
}

func TestRun_SaveUpserts(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	record := testRun("run-pg-up", "wf-pg-1", time.Now().UTC())
	record.Status = models.RunStatusRunning
	require.NoError(t, store.SaveRun(ctx, record))

	record.Status = models.RunStatusFailed
	record.Error = "block fetch: connection refused"
	require.NoError(t, store.SaveRun(ctx, record))

	loaded, err := store.RunByID(ctx, "run-pg-up")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, loaded.Status)
	assert.Equal(t, "block fetch: connection refused", loaded.Error)
}

func TestRun_NotFound(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	_, err := store.RunByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestRunsByWorkflow_FiltersAndOrders(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	now := time.Now().UTC()

	require.NoError(t, store.SaveRun(ctx, testRun("run-pg-a", "wf-pg-1", now.Add(-2*time.Hour))))
	require.NoError(t, store.SaveRun(ctx, testRun("run-pg-b", "wf-pg-1", now)))
	require.NoError(t, store.SaveRun(ctx, testRun("run-pg-c", "wf-pg-2", now.Add(-time.Hour))))

	records, err := store.RunsByWorkflow(ctx, "wf-pg-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-pg-b", records[0].ID)
	assert.Equal(t, "run-pg-a", records[1].ID)
}
