package models

import "time"

type WorkflowStatus string

const (
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusInactive WorkflowStatus = "inactive"
)

// Workflow is a directed graph of typed blocks, produced by an external
// authoring layer and consumed read-only at run start.
type Workflow struct {
	ID          string `json:"id"   yaml:"id"`
	Name        string `json:"name" validate:"required,min=3" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Blocks []*Block `json:"blocks" validate:"required,min=1,dive" yaml:"blocks"`
	Edges  []*Edge  `json:"edges,omitempty" validate:"omitempty,dive" yaml:"edges,omitempty"`

	// Variables seed the run's environment variables; a run request may
	// override individual entries.
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"  yaml:"metadata,omitempty"`

	// Schedule is an optional standard 5-field cron expression consumed by
	// the schedule source. Empty means the workflow only runs on request.
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`

	Status    WorkflowStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Owner     string         `json:"owner,omitempty"  yaml:"owner,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at,omitempty"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"`
}

// BlockByID returns the block with the given id, or nil.
func (w *Workflow) BlockByID(id string) *Block {
	for _, block := range w.Blocks {
		if block.ID == id {
			return block
		}
	}

	return nil
}

// OutgoingEdges returns all edges whose source is the given block id.
func (w *Workflow) OutgoingEdges(blockID string) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if edge.Source == blockID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// IncomingEdges returns all edges whose target is the given block id.
func (w *Workflow) IncomingEdges(blockID string) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if edge.Target == blockID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// Roots returns the blocks with no incoming edges. A run starts from the
// enabled roots.
func (w *Workflow) Roots() []*Block {
	hasIncoming := make(map[string]bool, len(w.Blocks))
	for _, edge := range w.Edges {
		hasIncoming[edge.Target] = true
	}

	var roots []*Block

	for _, block := range w.Blocks {
		if !hasIncoming[block.ID] {
			roots = append(roots, block)
		}
	}

	return roots
}
