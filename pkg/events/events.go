// Package events defines event types and structures for run lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every braid event.
const Topic = "braid.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run request events, emitted by sources and the API.
	RunRequestedEvent EventType = "run.requested"

	// Run lifecycle events, emitted by workers.
	RunStartedEvent    EventType = "run.started"
	BlockFinishedEvent EventType = "run.block.finished"
	RunFinishedEvent   EventType = "run.finished"
	RunFailedEvent     EventType = "run.failed"
	RunCancelledEvent  EventType = "run.cancelled"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// RunRequested asks a worker to execute a workflow. SourceID names the
// origin (schedule, queue, api); Variables override workflow variables for
// this run only. RunID pins the record id when the requester needs to hand
// it out before the run starts; workers generate one when it is empty.
type RunRequested struct {
	BaseEvent

	RunID      string            `json:"run_id,omitempty"`
	SourceID   string            `json:"source_id"`
	SourceData map[string]any    `json:"source_data,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
}

func (r RunRequested) GetType() EventType {
	return RunRequestedEvent
}

type RunStarted struct {
	BaseEvent

	RunID        string `json:"run_id"`
	WorkflowName string `json:"workflow_name,omitempty"`
}

func (r RunStarted) GetType() EventType {
	return RunStartedEvent
}

// BlockFinished reports one settled block, successful or not. Iteration is
// zero outside loop bodies.
type BlockFinished struct {
	BaseEvent

	RunID      string `json:"run_id"`
	BlockID    string `json:"block_id"`
	BlockKind  string `json:"block_kind"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Iteration  int    `json:"iteration,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (b BlockFinished) GetType() EventType {
	return BlockFinishedEvent
}

type RunFinished struct {
	BaseEvent

	RunID          string         `json:"run_id"`
	Status         string         `json:"status"`
	DurationMs     int64          `json:"duration_ms"`
	BlocksExecuted int            `json:"blocks_executed"`
	Results        map[string]any `json:"results,omitempty"`
}

func (r RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type RunFailed struct {
	BaseEvent

	RunID          string `json:"run_id"`
	Status         string `json:"status"`
	Error          string `json:"error"`
	DurationMs     int64  `json:"duration_ms"`
	BlocksExecuted int    `json:"blocks_executed"`
}

func (r RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunCancelled struct {
	BaseEvent

	RunID          string `json:"run_id"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
	BlocksExecuted int    `json:"blocks_executed"`
}

func (r RunCancelled) GetType() EventType {
	return RunCancelledEvent
}
