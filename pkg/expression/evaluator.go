// Package expression evaluates routing and condition expressions against the
// run state.
package expression

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// Env is the variable environment an expression sees: "inputs" (the block's
// resolved inputs), "blocks" (latest block states), "env" (environment
// variables).
type Env struct {
	Inputs map[string]any
	Blocks map[string]map[string]any
	Vars   map[string]string
}

func (e Env) toMap() map[string]any {
	blocks := make(map[string]any, len(e.Blocks))
	for id, state := range e.Blocks {
		blocks[id] = state
	}

	return map[string]any{
		"inputs": e.Inputs,
		"blocks": blocks,
		"env":    e.Vars,
		"null":   nil,
	}
}

// Evaluate compiles and runs one expression. Undefined variables evaluate to
// nil rather than failing, so expressions can probe optional state.
func Evaluate(expression string, env Env) (any, error) {
	context := env.toMap()

	// expr.Env must precede AllowUndefinedVariables to take effect.
	program, err := expr.Compile(expression, expr.Env(context), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", expression, err)
	}

	result, err := expr.Run(program, context)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}

	return result, nil
}

// EvaluateBool evaluates an expression that must produce a boolean.
func EvaluateBool(expression string, env Env) (bool, error) {
	result, err := Evaluate(expression, env)
	if err != nil {
		return false, err
	}

	value, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q evaluated to %T, expected a boolean", expression, result)
	}

	return value, nil
}
