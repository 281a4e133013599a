// Package workflowmgr implements cross-workflow call/return (spec.md
// §4.6): resolving a WORKFLOW_CALL target, binding actual arguments to a
// callee's declared parameters, enforcing the call-depth limit, and
// scoping cancellation so a call's control_fork/async_timeout children
// are torn down when the call itself returns or errors.
//
// Manager never imports internal/executor: it depends on a BlockRunner
// callback the Engine wires at startup to the executor's concrete
// workflow-body runner, avoiding an import cycle (executor depends on
// workflowmgr to implement workflow_call, not the other way around).
package workflowmgr

import (
	"context"

	"github.com/lyzr/lexflow/internal/ir"
	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/runtime"
)

const component = "workflowmgr"

// DefaultMaxCallDepth matches spec.md §4.6's stated default.
const DefaultMaxCallDepth = 1024

// BlockRunner executes wf's body to completion under frame's scope and
// returns its return value (from a workflow_return statement, or nil if
// the body ran off the end without one).
type BlockRunner func(ctx context.Context, wf *ir.Workflow, frame *runtime.CallFrame) (any, error)

// Manager resolves and executes workflow calls.
type Manager struct {
	program  *ir.Program
	maxDepth int
	run      BlockRunner
}

// New builds a Manager. run is typically supplied as a bound method
// value on the Engine's executor instance.
func New(program *ir.Program, maxDepth int, run BlockRunner) *Manager {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	return &Manager{program: program, maxDepth: maxDepth, run: run}
}

// Call resolves name against externals ∪ {main}, binds actuals to its
// declared parameters, and runs its body at callerDepth+1. A child
// context is derived from ctx so the callee's fork/timeout children are
// cancelled the moment this call returns, successfully or not.
func (m *Manager) Call(ctx context.Context, name string, actuals map[string]any, callerDepth int) (any, error) {
	wf, ok := m.program.Lookup(name)
	if !ok {
		return nil, lexerr.New(lexerr.KindWorkflowNotFound, component, "no such workflow %q", name)
	}

	depth := callerDepth + 1
	if depth > m.maxDepth {
		return nil, lexerr.New(lexerr.KindStackOverflow, component,
			"call depth exceeded %d calling %q", m.maxDepth, name).WithWorkflow(name)
	}

	locals, err := bindParams(wf, actuals)
	if err != nil {
		return nil, err
	}
	frame := runtime.NewCallFrame(name, locals, depth)

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	return m.run(callCtx, wf, frame)
}

// bindParams produces the callee's initial local scope: its declared
// locals, overridden by every actual bound to a declared parameter name.
// A declared parameter missing from actuals is a KindArity failure; an
// actual naming anything beyond the declared parameters is a
// KindUnknownParam failure (spec.md §4.6) rather than being silently
// dropped.
func bindParams(wf *ir.Workflow, actuals map[string]any) (map[string]any, error) {
	declared := make(map[string]bool, len(wf.Params))
	for _, param := range wf.Params {
		declared[param] = true
	}
	for name := range actuals {
		if !declared[name] {
			return nil, lexerr.New(lexerr.KindUnknownParam, component,
				"workflow %q: %q is not a declared parameter", wf.Name, name).WithWorkflow(wf.Name)
		}
	}

	locals := make(map[string]any, len(wf.Locals)+len(wf.Params))
	for k, v := range wf.Locals {
		locals[k] = v
	}
	for _, param := range wf.Params {
		v, ok := actuals[param]
		if !ok {
			return nil, lexerr.New(lexerr.KindArity, component,
				"workflow %q: missing required argument %q", wf.Name, param).WithWorkflow(wf.Name)
		}
		locals[param] = v
	}
	return locals, nil
}
