// Package protocol defines the contracts between the executor and the block
// handler family.
package protocol

import (
	"context"

	"github.com/braidflow/braid/pkg/models"
)

// RunState is the read surface handlers get over the active run. The maps
// returned are copies; handlers never mutate run state directly.
type RunState interface {
	// RunID returns the id of the current run.
	RunID() string

	// WorkflowID returns the id of the workflow being executed.
	WorkflowID() string

	// BlockStates returns the latest resolved output of every executed block.
	BlockStates() map[string]map[string]any

	// EnvironmentVariables returns the run's environment variable map.
	EnvironmentVariables() map[string]string
}

// Handler executes one block kind. Implementations are stateless: every
// per-run value arrives through the arguments.
type Handler interface {
	// CanHandle is a pure predicate on the block's kind discriminator.
	CanHandle(block *models.Block) bool

	// Execute runs the block with its resolved inputs and returns the output
	// recorded into the run's block states. It may block while awaiting an
	// external tool call and must honor ctx cancellation.
	Execute(ctx context.Context, block *models.Block, inputs map[string]any, state RunState) (map[string]any, error)

	// Name identifies the handler in registry and validation output.
	Name() string

	// Schema returns the JSON schema the block's config must satisfy, or
	// nil when the handler accepts any config.
	Schema() map[string]any
}
