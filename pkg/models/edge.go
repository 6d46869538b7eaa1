package models

// Reserved edge labels on loop blocks. "body" edges enter the loop body
// subgraph; "done" edges continue after the loop completes.
const (
	EdgeLabelBody = "body"
	EdgeLabelDone = "done"
)

// Branch labels written by condition blocks.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Edge is a directed connection between two block ids. Label is optional;
// router and condition blocks use it to mark which outgoing edge corresponds
// to which decision outcome.
type Edge struct {
	ID     string `json:"id,omitempty"    yaml:"id,omitempty"`
	Source string `json:"source"          validate:"required" yaml:"source"`
	Target string `json:"target"          validate:"required" yaml:"target"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Labeled reports whether the edge carries a branch label.
func (e *Edge) Labeled() bool {
	return e.Label != ""
}
