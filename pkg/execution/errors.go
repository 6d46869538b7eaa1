package execution

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure classes the engine distinguishes. Callers
// match on these with errors.Is; the typed errors below carry the details.
var (
	ErrUnresolvedReference        = errors.New("unresolved reference")
	ErrMissingEnvironmentVariable = errors.New("missing environment variable")
	ErrToolInvocation             = errors.New("tool invocation failed")
	ErrToolTimeout                = errors.New("tool invocation timed out")
)

// UnresolvedReferenceError reports a block reference whose source block has
// not recorded any state, either because it never ran or because the
// reference names a block outside the workflow.
type UnresolvedReferenceError struct {
	BlockID   string
	Reference string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("reference %q resolves to block %q which has no recorded state", e.Reference, e.BlockID)
}

func (e *UnresolvedReferenceError) Unwrap() error { return ErrUnresolvedReference }

// MissingEnvironmentVariableError reports an environment variable reference
// with no configured value and no default.
type MissingEnvironmentVariableError struct {
	Name string
}

func (e *MissingEnvironmentVariableError) Error() string {
	return fmt.Sprintf("environment variable %q is not set", e.Name)
}

func (e *MissingEnvironmentVariableError) Unwrap() error { return ErrMissingEnvironmentVariable }

// ToolInvocationError reports a tool that answered with a failure envelope.
// Error returns the envelope message verbatim so block logs carry exactly
// what the tool reported.
type ToolInvocationError struct {
	Tool    string
	Message string
}

func (e *ToolInvocationError) Error() string { return e.Message }

func (e *ToolInvocationError) Unwrap() error { return ErrToolInvocation }

// TimeoutError reports a tool invocation that exceeded its per-block timeout.
type TimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Tool, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrToolTimeout }
