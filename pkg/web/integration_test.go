//go:build integration

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence/postgresql"
	"github.com/braidflow/braid/pkg/web"
	"github.com/gofiber/fiber/v3"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupIntegrationDB(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "braid_api_test",
				"POSTGRES_USER":     "braid",
				"POSTGRES_PASSWORD": "braid",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://braid:braid@%s:%s/braid_api_test?sslmode=disable", host, port.Port())
}

func setupIntegrationApp(t *testing.T) (*fiber.App, *postgresql.Persistence) {
	t.Helper()

	databaseURL := setupIntegrationDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := postgresql.NewPersistence(context.Background(), logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	return newTestApp(t, store), store
}

func TestWorkflowAPI_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	app, store := setupIntegrationApp(t)

	var (
		workflowID string
		runID      string
	)

	t.Run("Create Workflow", func(t *testing.T) {
		body, err := json.Marshal(createRequestFixture())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var workflow models.Workflow
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&workflow))
		require.NotEmpty(t, workflow.ID)
		assert.Equal(t, models.WorkflowStatusActive, workflow.Status)

		workflowID = workflow.ID
	})

	t.Run("Get Workflow", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/workflows/"+workflowID, nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var workflow models.Workflow
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&workflow))
		assert.Equal(t, "Order Sync", workflow.Name)
		require.Len(t, workflow.Blocks, 1)
		assert.Equal(t, "start", workflow.Blocks[0].ID)
	})

	t.Run("Update Workflow", func(t *testing.T) {
		body, err := json.Marshal(web.UpdateWorkflowRequest{Name: stringPtr("Order Sync v2")})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPatch, "/workflows/"+workflowID, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var workflow models.Workflow
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&workflow))
		assert.Equal(t, "Order Sync v2", workflow.Name)
	})

	t.Run("Trigger Run", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/workflows/"+workflowID+"/runs", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		var accepted web.RunAcceptedResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
		require.NotEmpty(t, accepted.RunID)
		assert.Equal(t, workflowID, accepted.WorkflowID)

		runID = accepted.RunID
	})

	t.Run("Read Run Record", func(t *testing.T) {
		// Stand in for the worker: record the run under the accepted ID.
		record := &models.RunRecord{
			ID:         runID,
			WorkflowID: workflowID,
			Status:     models.RunStatusCompleted,
			StartedAt:  time.Now().UTC().Add(-time.Second),
			FinishedAt: time.Now().UTC(),
			Logs: []models.BlockLog{
				{BlockID: "start", BlockKind: models.KindFunction, Success: true},
			},
		}
		require.NoError(t, store.SaveRun(context.Background(), record))

		req := httptest.NewRequest(http.MethodGet, "/runs/"+runID, nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var fetched models.RunRecord
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
		assert.Equal(t, models.RunStatusCompleted, fetched.Status)

		listReq := httptest.NewRequest(http.MethodGet, "/workflows/"+workflowID+"/runs", nil)

		listResp, err := app.Test(listReq)
		require.NoError(t, err)

		defer func() { _ = listResp.Body.Close() }()

		require.Equal(t, http.StatusOK, listResp.StatusCode)

		var listed struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listed))
		assert.Equal(t, 1, listed.Count)
	})

	t.Run("Delete Workflow", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/workflows/"+workflowID, nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		getReq := httptest.NewRequest(http.MethodGet, "/workflows/"+workflowID, nil)

		getResp, err := app.Test(getReq)
		require.NoError(t, err)

		defer func() { _ = getResp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
	})
}
