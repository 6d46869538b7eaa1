package models

// Structural block kinds understood by the engine. Any other kind names an
// external tool and is executed by the generic tool handler.
const (
	KindFunction  = "function"
	KindRouter    = "router"
	KindCondition = "condition"
	KindLoop      = "loop"
)

// OutputKeyBranch is the output field where router and condition handlers
// report the selected branch label.
const OutputKeyBranch = "branch"

// Loop iteration modes.
const (
	LoopModeCollection = "collection"
	LoopModeCount      = "count"
)

// ErrorPolicy controls how a block failure affects the rest of the run.
type ErrorPolicy string

const (
	// ErrorPolicyFail aborts the run on block failure. Zero value.
	ErrorPolicyFail ErrorPolicy = "fail"
	// ErrorPolicyContinue records the failure and lets the run continue
	// past the block. Blocks reachable only through it are pruned.
	ErrorPolicyContinue ErrorPolicy = "continue"
)

// Block is a single node of typed work in a workflow graph. Blocks are
// immutable once a run starts.
type Block struct {
	ID   string `json:"id"   validate:"required" yaml:"id"`
	Kind string `json:"kind" validate:"required" yaml:"kind"`
	Name string `json:"name,omitempty"          yaml:"name,omitempty"`

	// Config holds static parameters for the handler (expressions, routes,
	// loop bounds, tool settings).
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	// Inputs maps declared input names to unresolved input expressions:
	// literals, "{blockId}.{field}" references, "{{NAME}}" environment
	// references, or multi-part code fragment arrays.
	Inputs map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	Enabled bool        `json:"enabled"            yaml:"enabled"`
	OnError ErrorPolicy `json:"on_error,omitempty" yaml:"on_error,omitempty"`
}

// IsDecision reports whether the block selects one outgoing branch.
func (b *Block) IsDecision() bool {
	return b.Kind == KindRouter || b.Kind == KindCondition
}

// BestEffort reports whether a failure of this block should be recorded
// without aborting the run.
func (b *Block) BestEffort() bool {
	return b.OnError == ErrorPolicyContinue
}
