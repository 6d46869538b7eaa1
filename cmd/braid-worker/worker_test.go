package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidflow/braid/pkg/cmd"
	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/events"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence/file"
)

// recordingBus captures published events in order without a broker.
type recordingBus struct {
	mu        sync.Mutex
	published []eventbus.Event
}

func (b *recordingBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.published = append(b.published, event)

	return nil
}

func (b *recordingBus) Handle(events.EventType, eventbus.EventHandler) error { return nil }
func (b *recordingBus) Subscribe(context.Context) error                      { return nil }
func (b *recordingBus) Close() error                                         { return nil }
func (b *recordingBus) GenerateID() string                                   { return "test-event-id" }

func (b *recordingBus) Events() []eventbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]eventbus.Event, len(b.published))
	copy(out, b.published)

	return out
}

func newTestWorker(t *testing.T) (*Worker, *file.Persistence, *recordingBus) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	bus := &recordingBus{}
	registry := cmd.NewHandlerRegistry(cmd.NewToolRegistry(logger), logger)

	return NewWorker("test-worker", store, bus, registry, logger), store, bus
}

// seedWorkflow stores a one-block workflow whose log tool call resolves the
// REGION variable.
func seedWorkflow(t *testing.T, store *file.Persistence, id string, status models.WorkflowStatus) {
	t.Helper()

	err := store.SaveWorkflow(t.Context(), &models.Workflow{
		ID:     id,
		Name:   "Announce Region",
		Status: status,
		Blocks: []*models.Block{
			{
				ID:      "announce",
				Kind:    "log",
				Name:    "Announce",
				Inputs:  map[string]any{"message": "synced {{REGION}}"},
				Enabled: true,
			},
		},
		Variables: map[string]string{"REGION": "eu-west-1"},
	})
	require.NoError(t, err)
}

func runRequest(workflowID, runID string, variables map[string]string) *events.RunRequested {
	return &events.RunRequested{
		BaseEvent: events.NewBaseEvent(events.RunRequestedEvent, workflowID),
		RunID:     runID,
		SourceID:  "api",
		Variables: variables,
	}
}

func TestNewWorker(t *testing.T) {
	worker, store, bus := newTestWorker(t)

	require.NotNil(t, worker)
	assert.Equal(t, "test-worker", worker.id)
	assert.Equal(t, store, worker.store)
	assert.Equal(t, bus, worker.eventBus)
	assert.NotNil(t, worker.registry)
	assert.NotNil(t, worker.logger)
}

func TestWorker_HandleRunRequested_InvalidEvent(t *testing.T) {
	worker, _, bus := newTestWorker(t)

	err := worker.handleRunRequested(t.Context(), "not an event")

	require.NoError(t, err)
	assert.Empty(t, bus.Events())
}

func TestWorker_HandleRunRequested_UnknownWorkflow(t *testing.T) {
	worker, _, bus := newTestWorker(t)

	err := worker.handleRunRequested(t.Context(), runRequest("wf-missing", "", nil))

	require.NoError(t, err)
	assert.Empty(t, bus.Events())
}

func TestWorker_HandleRunRequested_InactiveWorkflow(t *testing.T) {
	worker, store, bus := newTestWorker(t)
	seedWorkflow(t, store, "wf-paused", models.WorkflowStatusInactive)

	err := worker.handleRunRequested(t.Context(), runRequest("wf-paused", "", nil))

	require.NoError(t, err)
	assert.Empty(t, bus.Events())
}

func TestWorker_HandleRunRequested_ExecutesRun(t *testing.T) {
	worker, store, bus := newTestWorker(t)
	seedWorkflow(t, store, "wf-orders", models.WorkflowStatusActive)

	request := runRequest("wf-orders", "run-pinned", map[string]string{"REGION": "us-east-1"})

	require.NoError(t, worker.handleRunRequested(t.Context(), request))

	record, err := store.RunByID(t.Context(), "run-pinned")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, record.Status)
	assert.Equal(t, "wf-orders", record.WorkflowID)
	require.Len(t, record.Logs, 1)
	assert.True(t, record.Logs[0].Success)

	// Request variables override the workflow's own.
	response, _ := record.BlockStates["announce"]["response"].(map[string]any)
	assert.Equal(t, "synced us-east-1", response["message"])

	published := bus.Events()
	require.Len(t, published, 3)

	runStarted, ok := published[0].(events.RunStarted)
	require.True(t, ok)
	assert.Equal(t, "run-pinned", runStarted.RunID)
	assert.Equal(t, "Announce Region", runStarted.WorkflowName)
	assert.Equal(t, "test-worker", runStarted.WorkerID)

	blockFinished, ok := published[1].(events.BlockFinished)
	require.True(t, ok)
	assert.Equal(t, "announce", blockFinished.BlockID)
	assert.Equal(t, "log", blockFinished.BlockKind)
	assert.True(t, blockFinished.Success)

	runFinished, ok := published[2].(events.RunFinished)
	require.True(t, ok)
	assert.Equal(t, "run-pinned", runFinished.RunID)
	assert.Equal(t, "completed", runFinished.Status)
	assert.Equal(t, 1, runFinished.BlocksExecuted)
	assert.Contains(t, runFinished.Results, "announce")
}

func TestWorker_HandleRunRequested_GeneratesRunID(t *testing.T) {
	worker, store, bus := newTestWorker(t)
	seedWorkflow(t, store, "wf-orders", models.WorkflowStatusActive)

	require.NoError(t, worker.handleRunRequested(t.Context(), runRequest("wf-orders", "", nil)))

	records, err := store.RunsByWorkflow(t.Context(), "wf-orders")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID)

	published := bus.Events()
	require.NotEmpty(t, published)

	runStarted, ok := published[0].(events.RunStarted)
	require.True(t, ok)
	assert.Equal(t, records[0].ID, runStarted.RunID)
}

func TestWorker_HandleRunRequested_FailedRun(t *testing.T) {
	worker, store, bus := newTestWorker(t)

	err := store.SaveWorkflow(t.Context(), &models.Workflow{
		ID:     "wf-broken",
		Name:   "Broken",
		Status: models.WorkflowStatusActive,
		Blocks: []*models.Block{
			{ID: "charge", Kind: "charge-card", Name: "Charge", Enabled: true},
		},
	})
	require.NoError(t, err)

	require.NoError(t, worker.handleRunRequested(t.Context(), runRequest("wf-broken", "run-fail", nil)))

	record, err := store.RunByID(t.Context(), "run-fail")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, record.Status)
	assert.Contains(t, record.Error, "not registered")

	published := bus.Events()
	require.Len(t, published, 3)

	blockFinished, ok := published[1].(events.BlockFinished)
	require.True(t, ok)
	assert.False(t, blockFinished.Success)
	assert.Contains(t, blockFinished.Error, "not registered")

	runFailed, ok := published[2].(events.RunFailed)
	require.True(t, ok)
	assert.Equal(t, "run-fail", runFailed.RunID)
	assert.Equal(t, "failed", runFailed.Status)
	assert.Contains(t, runFailed.Error, "not registered")
}
