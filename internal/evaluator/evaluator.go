// Package evaluator resolves a single ir.Input descriptor to a value
// (spec.md §4.3). It is the one place NODE(id) reporter dispatch,
// VARIABLE lookup, WORKFLOW_CALL-as-value, and LITERAL passthrough are
// implemented; the executor and every opcode handler call into it
// through vm.Machine.Eval rather than re-implementing dispatch.
package evaluator

import (
	"context"
	"sort"

	"github.com/lyzr/lexflow/internal/ir"
	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/registry"
	"github.com/lyzr/lexflow/internal/vm"
)

const component = "evaluator"

// ReporterInvoker dispatches a reporter Statement through the opcode
// registry and returns its value. Supplied by the executor, which alone
// knows how to build a vm.Call from a Statement's inputs.
type ReporterInvoker func(ctx context.Context, m vm.Machine, stmt *ir.Statement) (any, error)

// WorkflowCaller runs a named workflow to completion with no arguments
// and returns its return value — what a bare WORKFLOW_CALL(name) Input
// resolves to when used as a value source rather than as the
// workflow_call control opcode. Supplied by the executor, which wires it
// to internal/workflowmgr.
type WorkflowCaller func(ctx context.Context, name string) (any, error)

// Evaluator is immutable once its two callbacks are wired in via
// SetReporterInvoker/SetWorkflowCaller.
type Evaluator struct {
	program  *ir.Program
	registry *registry.Registry
	invoke   ReporterInvoker
	call     WorkflowCaller
}

// New builds an Evaluator bound to program and registry. invoke and call
// may be supplied later via SetReporterInvoker/SetWorkflowCaller since
// the executor that implements them is constructed after (and depends
// on) the Evaluator.
func New(program *ir.Program, reg *registry.Registry) *Evaluator {
	return &Evaluator{program: program, registry: reg}
}

func (e *Evaluator) SetReporterInvoker(fn ReporterInvoker) { e.invoke = fn }
func (e *Evaluator) SetWorkflowCaller(fn WorkflowCaller)   { e.call = fn }

// Eval resolves one Input to a value, against ctx's current lexical
// scope (spec.md §5); m is passed through to the reporter invoker so
// opcode handlers can themselves call Eval/RunBlock.
func (e *Evaluator) Eval(ctx context.Context, m vm.Machine, input *ir.Input) (any, error) {
	if input == nil {
		return nil, nil
	}
	switch input.Tag {
	case ir.TagLiteral:
		return input.Literal, nil

	case ir.TagVariable:
		v, ok := m.Scope(ctx).Get(input.Name)
		if !ok {
			return nil, lexerr.New(lexerr.KindUnboundVariable, component, "unbound variable %q", input.Name)
		}
		return v, nil

	case ir.TagNode:
		stmt, ok := e.program.Reporters[input.NodeID]
		if !ok {
			return nil, lexerr.New(lexerr.KindValidation, component, "NODE(%s) does not refer to a known reporter", input.NodeID).WithNode(input.NodeID)
		}
		if e.invoke == nil {
			return nil, lexerr.New(lexerr.KindRuntime, component, "reporter dispatch not wired")
		}
		return e.invoke(ctx, m, stmt)

	case ir.TagWorkflowCall:
		if e.call == nil {
			return nil, lexerr.New(lexerr.KindRuntime, component, "workflow call dispatch not wired")
		}
		return e.call(ctx, input.Name)

	case ir.TagBranch:
		return nil, lexerr.New(lexerr.KindValidation, component, "branch inputs cannot be evaluated directly; the owning opcode must RunBlock it")

	default:
		return nil, lexerr.New(lexerr.KindValidation, component, "unknown input tag %d", input.Tag)
	}
}

// EvalArgs evaluates every input on stmt into a name->value map, in the
// opcode's declared parameter order rather than Go's randomized map
// iteration order (spec.md §4.3) — this matters whenever an opcode's
// reporters have observable side effects, since evaluation order is
// otherwise unspecified. Inputs the registry interface doesn't declare
// are evaluated afterward, in sorted-name order, so behavior stays
// deterministic even for opcodes invoked without a registered interface.
func (e *Evaluator) EvalArgs(ctx context.Context, m vm.Machine, stmt *ir.Statement) (map[string]any, error) {
	args := make(map[string]any, len(stmt.Inputs))
	seen := make(map[string]bool, len(stmt.Inputs))

	if iface, ok := e.registry.Interface(stmt.Opcode); ok {
		for _, p := range iface.Params {
			input, present := stmt.Inputs[p.Name]
			if !present {
				if p.Required {
					return nil, lexerr.New(lexerr.KindArity, component, "opcode %q: missing required input %q", stmt.Opcode, p.Name).WithNode(stmt.NodeID)
				}
				continue
			}
			v, err := e.Eval(ctx, m, input)
			if err != nil {
				return nil, err
			}
			args[p.Name] = v
			seen[p.Name] = true
		}
	}

	remaining := make([]string, 0, len(stmt.Inputs))
	for name := range stmt.Inputs {
		if !seen[name] {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)
	for _, name := range remaining {
		v, err := e.Eval(ctx, m, stmt.Inputs[name])
		if err != nil {
			return nil, err
		}
		args[name] = v
	}

	return args, nil
}
