// Package celexpr evaluates CEL expressions against the current scope,
// backing the expr_cel opcode. It generalizes the teacher's
// condition.Evaluator (a cached CEL program keyed by expression text,
// evaluated against an "output"/"ctx" pair) to evaluate any expression
// against LexFlow's full variable scope rather than a fixed two-variable
// shape, and to return whatever value the expression produces instead of
// requiring it to be boolean.
package celexpr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
)

// Evaluator compiles and caches CEL programs by expression text.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEvaluator returns an empty, concurrency-safe Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]cel.Program)}
}

// Eval evaluates expr against vars (typically the current scope's
// bindings, flattened) and returns the resulting Go value.
func (e *Evaluator) Eval(expr string, vars map[string]any) (any, error) {
	prg, err := e.program(expr, vars)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, len(vars))
	for k, v := range vars {
		activation[k] = v
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("cel evaluation error: %w", err)
	}
	return out.Value(), nil
}

// program returns the cached compiled program for expr, compiling a
// fresh one (with a CEL dyn-typed variable per key in vars) on a cache
// miss. Programs are cached per expression and per set of variable
// names, so a call whose vars carry a set of names no earlier call used
// compiles and caches a new program.
func (e *Evaluator) program(expr string, vars map[string]any) (cel.Program, error) {
	key := envKey(expr, vars)

	e.mu.RLock()
	prg, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	opts := make([]cel.EnvOption, 0, len(vars))
	for name := range vars {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile error: %w", issues.Err())
	}

	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}

	e.mu.Lock()
	e.cache[key] = prg
	e.mu.Unlock()
	return prg, nil
}

// envKey distinguishes cache entries by expression AND variable-name
// set, since the CEL environment's declared variables are part of a
// program's identity — reusing a program compiled against a different
// variable set would let undeclared names silently resolve to nothing.
func envKey(expr string, vars map[string]any) string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	key := expr
	for _, name := range names {
		key += "\x00" + name
	}
	return key
}
