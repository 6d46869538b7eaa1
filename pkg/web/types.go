// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/braidflow/braid/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new workflow.
// The full block graph is part of the document; there are no separate block
// endpoints.
type CreateWorkflowRequest struct {
	Name        string                `json:"name"                  validate:"required,min=3"`
	Description string                `json:"description,omitempty"`
	Blocks      []*models.Block       `json:"blocks"                validate:"required,min=1"`
	Edges       []*models.Edge        `json:"edges,omitempty"`
	Variables   map[string]string     `json:"variables,omitempty"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
	Schedule    string                `json:"schedule,omitempty"`
	Status      models.WorkflowStatus `json:"status,omitempty"      validate:"omitempty,oneof=active inactive"`
	Owner       string                `json:"owner,omitempty"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates; blocks and edges are
// replaced wholesale when present.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                `json:"description,omitempty"`
	Blocks      []*models.Block        `json:"blocks,omitempty"`
	Edges       []*models.Edge         `json:"edges,omitempty"`
	Variables   map[string]string      `json:"variables,omitempty"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
	Schedule    *string                `json:"schedule,omitempty"`
	Status      *models.WorkflowStatus `json:"status,omitempty"      validate:"omitempty,oneof=active inactive"`
}

// RunWorkflowRequest represents the optional request body for triggering a
// run. Variables override workflow variables for this run only.
type RunWorkflowRequest struct {
	Variables map[string]string `json:"variables,omitempty"`
}

// RunAcceptedResponse is returned when a run request has been published. The
// record under RunID appears once a worker finishes the run.
type RunAcceptedResponse struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}
