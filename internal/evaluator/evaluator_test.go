package evaluator

import (
	"context"
	"log/slog"
	"testing"

	"github.com/lyzr/lexflow/internal/channel"
	"github.com/lyzr/lexflow/internal/ir"
	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/registry"
	"github.com/lyzr/lexflow/internal/runtime"
	"github.com/lyzr/lexflow/internal/taskmanager"
	"github.com/lyzr/lexflow/internal/vm"
	"github.com/lyzr/lexflow/internal/workflowmgr"
)

// fakeMachine is a minimal vm.Machine backed by a single fixed scope, for
// exercising the Evaluator in isolation from internal/executor.
type fakeMachine struct {
	scope    *runtime.Scope
	tasks    *taskmanager.Manager
	channels *channel.Registry
}

func newFakeMachine(vars map[string]any) *fakeMachine {
	return &fakeMachine{scope: runtime.NewScope(vars), tasks: taskmanager.New(0), channels: channel.NewRegistry(0)}
}

func (f *fakeMachine) Eval(ctx context.Context, input *ir.Input) (any, error) { return nil, nil }
func (f *fakeMachine) RunBlock(ctx context.Context, block *ir.Block) (vm.Flow, error) {
	return vm.NoFlow, nil
}
func (f *fakeMachine) Scope(ctx context.Context) *runtime.Scope { return f.scope }
func (f *fakeMachine) WithChildScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, struct{}{}, f.scope.Child())
}
func (f *fakeMachine) WithScope(ctx context.Context, scope *runtime.Scope) context.Context {
	return ctx
}
func (f *fakeMachine) WithFrame(ctx context.Context, frame *runtime.CallFrame) context.Context {
	return ctx
}
func (f *fakeMachine) Frame(ctx context.Context) *runtime.CallFrame       { return nil }
func (f *fakeMachine) Tasks() *taskmanager.Manager     { return f.tasks }
func (f *fakeMachine) Workflows() *workflowmgr.Manager { return nil }
func (f *fakeMachine) Channels() *channel.Registry     { return f.channels }
func (f *fakeMachine) Logger() *slog.Logger            { return slog.Default() }
func (f *fakeMachine) RootContext() context.Context    { return context.Background() }

func TestEvalLiteral(t *testing.T) {
	e := New(&ir.Program{}, registry.New())
	m := newFakeMachine(nil)

	v, err := e.Eval(context.Background(), m, &ir.Input{Tag: ir.TagLiteral, Literal: "hi"})
	if err != nil || v != "hi" {
		t.Fatalf("Eval(literal) = %v, %v", v, err)
	}
}

func TestEvalVariableBoundAndUnbound(t *testing.T) {
	e := New(&ir.Program{}, registry.New())
	m := newFakeMachine(map[string]any{"total": 45.0})

	v, err := e.Eval(context.Background(), m, &ir.Input{Tag: ir.TagVariable, Name: "total"})
	if err != nil || v != 45.0 {
		t.Fatalf("Eval(variable total) = %v, %v", v, err)
	}

	_, err = e.Eval(context.Background(), m, &ir.Input{Tag: ir.TagVariable, Name: "nope"})
	kind, ok := lexerr.KindOf(err)
	if !ok || kind != lexerr.KindUnboundVariable {
		t.Fatalf("kind = %v, %v, want %v", kind, ok, lexerr.KindUnboundVariable)
	}
}

func TestEvalNodeDispatchesReporter(t *testing.T) {
	stmt := &ir.Statement{Opcode: "op_add", NodeID: "r1"}
	program := &ir.Program{Reporters: map[string]*ir.Statement{"r1": stmt}}
	e := New(program, registry.New())
	m := newFakeMachine(nil)

	var invokedWith *ir.Statement
	e.SetReporterInvoker(func(ctx context.Context, m vm.Machine, s *ir.Statement) (any, error) {
		invokedWith = s
		return 99, nil
	})

	v, err := e.Eval(context.Background(), m, &ir.Input{Tag: ir.TagNode, NodeID: "r1"})
	if err != nil || v != 99 {
		t.Fatalf("Eval(node) = %v, %v", v, err)
	}
	if invokedWith != stmt {
		t.Fatal("reporter invoker was not called with the resolved statement")
	}
}

func TestEvalNodeUnknownReporter(t *testing.T) {
	program := &ir.Program{Reporters: map[string]*ir.Statement{}}
	e := New(program, registry.New())
	m := newFakeMachine(nil)

	_, err := e.Eval(context.Background(), m, &ir.Input{Tag: ir.TagNode, NodeID: "ghost"})
	if err == nil {
		t.Fatal("expected an error resolving an unknown NODE(id)")
	}
}

func TestEvalArgsOrderFollowsDeclaredParams(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(registry.Interface{
		Opcode: "two_args",
		Params: []registry.Param{{Name: "a", Required: true}, {Name: "b", Required: true}},
	}, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	program := &ir.Program{}
	e := New(program, reg)
	m := newFakeMachine(nil)

	var order []string
	e.SetReporterInvoker(func(ctx context.Context, m vm.Machine, s *ir.Statement) (any, error) {
		order = append(order, s.NodeID)
		return s.NodeID, nil
	})

	stmt := &ir.Statement{
		Opcode: "two_args",
		Inputs: map[string]*ir.Input{
			"b": {Tag: ir.TagNode, NodeID: "node_b"},
			"a": {Tag: ir.TagNode, NodeID: "node_a"},
		},
	}
	program.Reporters = map[string]*ir.Statement{
		"node_a": {Opcode: "noop", NodeID: "node_a"},
		"node_b": {Opcode: "noop", NodeID: "node_b"},
	}

	args, err := e.EvalArgs(context.Background(), m, stmt)
	if err != nil {
		t.Fatalf("EvalArgs: %v", err)
	}
	if args["a"] != "node_a" || args["b"] != "node_b" {
		t.Fatalf("args = %v", args)
	}
	if len(order) != 2 || order[0] != "node_a" || order[1] != "node_b" {
		t.Fatalf("evaluation order = %v, want [node_a, node_b] (declared param order)", order)
	}
}

func TestEvalArgsMissingRequiredInput(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(registry.Interface{
		Opcode: "needs_a",
		Params: []registry.Param{{Name: "a", Required: true}},
	}, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	e := New(&ir.Program{}, reg)
	m := newFakeMachine(nil)

	_, err := e.EvalArgs(context.Background(), m, &ir.Statement{Opcode: "needs_a"})
	kind, ok := lexerr.KindOf(err)
	if !ok || kind != lexerr.KindArity {
		t.Fatalf("kind = %v, %v, want %v", kind, ok, lexerr.KindArity)
	}
}
