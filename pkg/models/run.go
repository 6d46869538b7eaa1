package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// BlockLog is one execution record. Entries are appended in actual
// completion order.
type BlockLog struct {
	BlockID    string         `json:"block_id"`
	BlockKind  string         `json:"block_kind"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Success    bool           `json:"success"`

	// Iteration is the loop pass this entry belongs to (1-based) when the
	// block is part of a loop body, 0 otherwise.
	Iteration int `json:"iteration,omitempty"`
}

// RunRecord is the result of one workflow run: the ordered log sequence plus
// the final block state snapshot, handed to persistence and reporting.
type RunRecord struct {
	ID          string                    `json:"id"`
	WorkflowID  string                    `json:"workflow_id"`
	Status      RunStatus                 `json:"status"`
	StartedAt   time.Time                 `json:"started_at"`
	FinishedAt  time.Time                 `json:"finished_at"`
	BlockStates map[string]map[string]any `json:"block_states"`
	Logs        []BlockLog                `json:"logs"`
	Error       string                    `json:"error,omitempty"`
}

// Succeeded reports whether the run completed without an unrecovered error.
func (r *RunRecord) Succeeded() bool {
	return r.Status == RunStatusCompleted
}
