package execution

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"github.com/braidflow/braid/pkg/models"
)

var (
	blockRefPattern = regexp.MustCompile(`^\{([A-Za-z0-9_-]+)\.([A-Za-z0-9_.-]+)\}$`)
	envRefPattern   = regexp.MustCompile(`\{\{([A-Z][A-Z0-9_]*)(?::([^}]*))?\}\}`)
)

// InputResolver turns a block's declared inputs into concrete values against
// the current run state. Strings of the form {blockId.field} read another
// block's recorded output, {{NAME}} and {{NAME:default}} read environment
// variables, and arrays of {content: ...} fragments are joined into a single
// newline-separated string. Everything else passes through unchanged.
type InputResolver struct {
	logger *slog.Logger
}

func NewInputResolver(logger *slog.Logger) *InputResolver {
	return &InputResolver{logger: logger.With("module", "resolver")}
}

func (r *InputResolver) Resolve(block *models.Block, execCtx *ExecutionContext) (map[string]any, error) {
	resolved := make(map[string]any, len(block.Inputs))

	for name, raw := range block.Inputs {
		value, err := r.resolveValue(raw, execCtx)
		if err != nil {
			return nil, fmt.Errorf("block %s input %q: %w", block.ID, name, err)
		}

		resolved[name] = value
	}

	return resolved, nil
}

func (r *InputResolver) resolveValue(raw any, execCtx *ExecutionContext) (any, error) {
	switch value := raw.(type) {
	case string:
		return r.resolveString(value, execCtx)
	case []any:
		if fragments, ok := codeFragments(value); ok {
			return strings.Join(fragments, "\n"), nil
		}

		resolved := make([]any, len(value))
		for i, element := range value {
			item, err := r.resolveValue(element, execCtx)
			if err != nil {
				return nil, err
			}

			resolved[i] = item
		}

		return resolved, nil
	case map[string]any:
		resolved := make(map[string]any, len(value))
		for key, element := range value {
			item, err := r.resolveValue(element, execCtx)
			if err != nil {
				return nil, err
			}

			resolved[key] = item
		}

		return resolved, nil
	default:
		return raw, nil
	}
}

func (r *InputResolver) resolveString(value string, execCtx *ExecutionContext) (any, error) {
	if match := blockRefPattern.FindStringSubmatch(value); match != nil {
		return r.resolveBlockRef(value, match[1], match[2], execCtx)
	}

	return r.substituteEnvRefs(value, execCtx)
}

func (r *InputResolver) resolveBlockRef(reference, blockID, fieldPath string, execCtx *ExecutionContext) (any, error) {
	state, ok := execCtx.BlockState(blockID)
	if !ok {
		return nil, &UnresolvedReferenceError{BlockID: blockID, Reference: reference}
	}

	container := gabs.Wrap(map[string]any(state))
	if !container.ExistsP(fieldPath) {
		// The block ran but never produced this field. Absent fields
		// resolve to null rather than failing the run.
		r.logger.Debug("block reference field absent", "reference", reference)

		return nil, nil
	}

	return container.Path(fieldPath).Data(), nil
}

// substituteEnvRefs resolves environment variable references. A string that
// is exactly one reference keeps the variable's value as-is; references
// embedded in longer text are substituted in place.
func (r *InputResolver) substituteEnvRefs(value string, execCtx *ExecutionContext) (any, error) {
	if !strings.Contains(value, "{{") {
		return value, nil
	}

	if match := envRefPattern.FindStringSubmatch(value); match != nil && match[0] == value {
		return r.lookupEnv(match[1], match[2], strings.Contains(value, ":"), execCtx)
	}

	var missing error
	substituted := envRefPattern.ReplaceAllStringFunc(value, func(ref string) string {
		match := envRefPattern.FindStringSubmatch(ref)

		resolved, err := r.lookupEnv(match[1], match[2], strings.Contains(ref, ":"), execCtx)
		if err != nil {
			if missing == nil {
				missing = err
			}

			return ref
		}

		return resolved
	})

	if missing != nil {
		return nil, missing
	}

	return substituted, nil
}

func (r *InputResolver) lookupEnv(name, fallback string, hasFallback bool, execCtx *ExecutionContext) (string, error) {
	if value, ok := execCtx.EnvVar(name); ok {
		return value, nil
	}

	if hasFallback {
		return fallback, nil
	}

	return "", &MissingEnvironmentVariableError{Name: name}
}

// codeFragments reports whether every element of the array is a fragment map
// carrying string content, returning the contents in order when so.
func codeFragments(elements []any) ([]string, bool) {
	if len(elements) == 0 {
		return nil, false
	}

	fragments := make([]string, 0, len(elements))

	for _, element := range elements {
		fragment, ok := element.(map[string]any)
		if !ok {
			return nil, false
		}

		content, ok := fragment["content"].(string)
		if !ok {
			return nil, false
		}

		fragments = append(fragments, content)
	}

	return fragments, true
}
