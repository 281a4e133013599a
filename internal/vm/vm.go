// Package vm holds the small set of types the rest of LexFlow's execution
// core shares without importing each other directly: Flow/Signal (the
// result of running a Block), Call (one opcode invocation's resolved
// arguments), and Machine (the callback surface opcode handlers use to
// evaluate inputs, run nested blocks, and reach the current scope, task
// manager and workflow manager).
//
// internal/registry and internal/opcodes reach the executor only through
// this package's Machine interface; internal/executor is the concrete
// Machine implementation. That split is what lets opcode handlers call
// back into block execution (control_if, control_while, control_spawn,
// ...) without executor, registry and opcodes forming an import cycle.
//
// The current lexical scope and call frame travel as values inside
// context.Context (see Machine.Scope/Frame/WithChildScope) rather than as
// mutable Machine fields, because concurrently-running fork branches and
// spawned tasks each need their own view of "the current scope" at the
// same time.
package vm

import (
	"context"
	"log/slog"

	"github.com/lyzr/lexflow/internal/channel"
	"github.com/lyzr/lexflow/internal/ir"
	"github.com/lyzr/lexflow/internal/runtime"
	"github.com/lyzr/lexflow/internal/taskmanager"
	"github.com/lyzr/lexflow/internal/workflowmgr"
)

// Signal is what RunBlock reports: how the enclosing construct should
// continue after a Block finished (spec.md §4.4).
type Signal int

const (
	// SignalNone means the Block ran to completion with no unwind in
	// progress; the caller proceeds normally.
	SignalNone Signal = iota
	// SignalBreak unwinds to the nearest enclosing loop and stops it.
	SignalBreak
	// SignalContinueLoop unwinds to the nearest enclosing loop and starts
	// its next iteration.
	SignalContinueLoop
	// SignalReturn unwinds all the way to the current call frame's
	// boundary, carrying Flow.Value as the workflow's return value.
	SignalReturn
)

func (s Signal) String() string {
	switch s {
	case SignalNone:
		return "none"
	case SignalBreak:
		return "break"
	case SignalContinueLoop:
		return "continue"
	case SignalReturn:
		return "return"
	default:
		return "unknown"
	}
}

// Flow is RunBlock's result: the signal the enclosing construct must act
// on, plus any value riding along with it (only meaningful for
// SignalReturn).
type Flow struct {
	Signal Signal
	Value  any
}

// NoFlow is the zero value: keep walking, nothing to unwind.
var NoFlow = Flow{Signal: SignalNone}

// Machine is the surface an opcode handler uses to interact with the
// running program.
type Machine interface {
	// Eval resolves one Input descriptor to a value (spec.md §4.3), using
	// ctx's current scope.
	Eval(ctx context.Context, input *ir.Input) (any, error)

	// RunBlock executes a Block's statements in ctx's current scope, in
	// order, and reports how control should continue in the enclosing
	// construct.
	RunBlock(ctx context.Context, block *ir.Block) (Flow, error)

	// Scope returns ctx's current (innermost) variable scope.
	Scope(ctx context.Context) *runtime.Scope

	// WithChildScope returns a copy of ctx carrying a fresh scope nested
	// under ctx's current one — used before RunBlock-ing a loop body or
	// branch that should get its own block-local bindings.
	WithChildScope(ctx context.Context) context.Context

	// WithScope returns a copy of ctx carrying scope directly, with no
	// new child created. control_spawn and control_fork use this to hand
	// a concurrently-running task/branch the exact same *runtime.Scope
	// instance as the statement that launched it — scope chains are
	// shared by reference across forked/spawned tasks, not copied
	// (spec.md §5).
	WithScope(ctx context.Context, scope *runtime.Scope) context.Context

	// WithFrame returns a copy of ctx carrying frame, for propagating the
	// current call frame into a derived context (e.g. one built from
	// RootContext for a spawned task).
	WithFrame(ctx context.Context, frame *runtime.CallFrame) context.Context

	// Frame returns ctx's current call frame (workflow name, depth).
	Frame(ctx context.Context) *runtime.CallFrame

	// Tasks returns the Runtime-scoped task manager control_spawn and the
	// task_* opcodes (task_await, task_cancel, ...) use.
	Tasks() *taskmanager.Manager

	// Workflows returns the workflow manager workflow_call uses to
	// invoke another workflow by name.
	Workflows() *workflowmgr.Manager

	// Channels returns the Runtime-owned channel registry channel_new
	// creates every channel through, so the Runtime can close every
	// channel it ever created on run teardown (spec.md §5/§8).
	Channels() *channel.Registry

	// Logger returns the contextual logger for the current run.
	Logger() *slog.Logger

	// RootContext returns the Runtime's root context — the context
	// control_spawn tasks derive from, so they outlive the call that
	// spawned them (spec.md §4.6/§4.7).
	RootContext() context.Context
}

// Handler is the function signature every opcode registers under. call
// carries the statement's resolved invocation data; m is the callback
// surface for anything the opcode needs from the running program.
//
// A control opcode (Interface.Control == true) returns a Flow as its
// value so the enclosing RunBlock loop knows whether to keep walking,
// unwind a loop, or return from the current workflow call. An eager
// opcode returns whatever plain value its contract promises; RunBlock
// discards it (statements execute for effect — only reporters produce
// values consumable elsewhere, via a NODE(id) Input).
type Handler func(ctx context.Context, m Machine, call *Call) (any, error)

// Call bundles a single opcode invocation. Every call carries Inputs, the
// statement's raw Input descriptors. Eager opcodes also get Args (already
// evaluated, in declared-parameter order). Control opcodes get no Args:
// they evaluate Inputs themselves (so they can defer or repeat evaluation —
// a loop condition re-checked every iteration) and receive Branches, the
// lowered Block for every TagBranch input, keyed by input name.
type Call struct {
	Opcode   string
	NodeID   string
	Args     map[string]any
	Inputs   map[string]*ir.Input
	Branches map[string]*ir.Block
}
