// Package executor implements vm.Machine (spec.md §4.4): the PC-based
// linear Block walk, dispatch between eager and control opcodes, and the
// glue that wires evaluator, registry, taskmanager and workflowmgr
// together into one running program.
//
// The current scope and call frame travel inside context.Context rather
// than as Executor fields, so concurrently-running fork branches and
// spawned tasks each see their own scope/frame without a shared mutable
// "current" pointer racing between goroutines.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/lyzr/lexflow/internal/channel"
	"github.com/lyzr/lexflow/internal/evaluator"
	"github.com/lyzr/lexflow/internal/ir"
	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/metrics"
	"github.com/lyzr/lexflow/internal/registry"
	"github.com/lyzr/lexflow/internal/runtime"
	"github.com/lyzr/lexflow/internal/taskmanager"
	"github.com/lyzr/lexflow/internal/vm"
	"github.com/lyzr/lexflow/internal/workflowmgr"
)

const component = "executor"

type ctxKey int

const (
	scopeCtxKey ctxKey = iota
	frameCtxKey
)

// Executor is the concrete vm.Machine. Workflows is wired in after
// construction via SetWorkflows, since workflowmgr.Manager needs a bound
// method value on Executor (RunWorkflow) as its BlockRunner — the two
// packages would otherwise need to import each other.
type Executor struct {
	program   *ir.Program
	registry  *registry.Registry
	eval      *evaluator.Evaluator
	tasks     *taskmanager.Manager
	workflows *workflowmgr.Manager
	channels  *channel.Registry
	logger    *slog.Logger
	rootCtx   context.Context
	metrics   *metrics.Collector
}

// New builds an Executor and wires it as eval's reporter/workflow-call
// dispatcher. Call SetWorkflows once the workflow manager exists.
func New(
	program *ir.Program,
	reg *registry.Registry,
	eval *evaluator.Evaluator,
	tasks *taskmanager.Manager,
	channels *channel.Registry,
	logger *slog.Logger,
	rootCtx context.Context,
) *Executor {
	x := &Executor{
		program:  program,
		registry: reg,
		eval:     eval,
		tasks:    tasks,
		channels: channels,
		logger:   logger,
		rootCtx:  rootCtx,
	}
	eval.SetReporterInvoker(x.invokeReporter)
	eval.SetWorkflowCaller(x.callWorkflowForValue)
	return x
}

// SetWorkflows completes construction; see New's doc comment.
func (x *Executor) SetWorkflows(wf *workflowmgr.Manager) { x.workflows = wf }

// SetMetrics attaches a Collector that records per-opcode invocation
// counts and timings; nil (the default) disables recording.
func (x *Executor) SetMetrics(c *metrics.Collector) { x.metrics = c }

// --- vm.Machine ---

func (x *Executor) Eval(ctx context.Context, input *ir.Input) (any, error) {
	return x.eval.Eval(ctx, x, input)
}

// RunBlock walks block's statements in order (the "PC" is simply this
// loop's index — LexFlow has no jump/goto opcode, so resuming mid-block
// is never required). It stops and returns early the moment a control
// opcode reports anything other than SignalNone.
func (x *Executor) RunBlock(ctx context.Context, block *ir.Block) (vm.Flow, error) {
	if block == nil {
		return vm.NoFlow, nil
	}
	for _, stmt := range block.Statements {
		if err := ctx.Err(); err != nil {
			return vm.NoFlow, err
		}
		flow, err := x.runStatement(ctx, stmt)
		if err != nil {
			return vm.NoFlow, err
		}
		if flow.Signal != vm.SignalNone {
			return flow, nil
		}
	}
	return vm.NoFlow, nil
}

func (x *Executor) Scope(ctx context.Context) *runtime.Scope {
	s, _ := ctx.Value(scopeCtxKey).(*runtime.Scope)
	return s
}

func (x *Executor) WithChildScope(ctx context.Context) context.Context {
	cur := x.Scope(ctx)
	var child *runtime.Scope
	if cur == nil {
		child = runtime.NewScope(nil)
	} else {
		child = cur.Child()
	}
	return x.WithScope(ctx, child)
}

func (x *Executor) WithScope(ctx context.Context, scope *runtime.Scope) context.Context {
	return context.WithValue(ctx, scopeCtxKey, scope)
}

func (x *Executor) WithFrame(ctx context.Context, frame *runtime.CallFrame) context.Context {
	return context.WithValue(ctx, frameCtxKey, frame)
}

func (x *Executor) Frame(ctx context.Context) *runtime.CallFrame {
	f, _ := ctx.Value(frameCtxKey).(*runtime.CallFrame)
	return f
}

func (x *Executor) Tasks() *taskmanager.Manager     { return x.tasks }
func (x *Executor) Workflows() *workflowmgr.Manager { return x.workflows }
func (x *Executor) Channels() *channel.Registry     { return x.channels }
func (x *Executor) Logger() *slog.Logger            { return x.logger }
func (x *Executor) RootContext() context.Context    { return x.rootCtx }

// --- internal dispatch ---

// runStatement executes one Statement: eager opcodes get their inputs
// evaluated up front (in declared-parameter order); control opcodes get
// the raw Inputs/Branches instead and decide for themselves what to
// evaluate and when (a while-loop condition must be re-evaluated every
// iteration, not once).
func (x *Executor) runStatement(ctx context.Context, stmt *ir.Statement) (vm.Flow, error) {
	iface, _ := x.registry.Interface(stmt.Opcode)

	call := &vm.Call{Opcode: stmt.Opcode, NodeID: stmt.NodeID, Inputs: stmt.Inputs}
	if iface.Control {
		call.Branches = branchesOf(stmt.Inputs)
	} else {
		args, err := x.eval.EvalArgs(ctx, x, stmt)
		if err != nil {
			return vm.NoFlow, annotateNode(err, stmt.NodeID)
		}
		call.Args = args
	}

	start := time.Now()
	result, err := x.registry.Invoke(ctx, x, call)
	if x.metrics != nil {
		x.metrics.Record(stmt.Opcode, time.Since(start), err != nil)
	}
	if err != nil {
		return vm.NoFlow, annotateNode(err, stmt.NodeID)
	}

	if iface.Control {
		if flow, ok := result.(vm.Flow); ok {
			return flow, nil
		}
	}
	return vm.NoFlow, nil
}

// invokeReporter dispatches a reporter Statement (reached via a NODE(id)
// Input, never via the linear Block walk) through the registry exactly
// like runStatement's eager path, and returns its produced value.
func (x *Executor) invokeReporter(ctx context.Context, m vm.Machine, stmt *ir.Statement) (any, error) {
	args, err := x.eval.EvalArgs(ctx, m, stmt)
	if err != nil {
		return nil, annotateNode(err, stmt.NodeID)
	}
	call := &vm.Call{Opcode: stmt.Opcode, NodeID: stmt.NodeID, Args: args, Inputs: stmt.Inputs}
	start := time.Now()
	result, err := x.registry.Invoke(ctx, m, call)
	if x.metrics != nil {
		x.metrics.Record(stmt.Opcode, time.Since(start), err != nil)
	}
	if err != nil {
		return nil, annotateNode(err, stmt.NodeID)
	}
	return result, nil
}

// callWorkflowForValue is the evaluator.WorkflowCaller: a bare
// WORKFLOW_CALL(name) Input calls name with no arguments and yields its
// return value, at the current frame's depth + 1.
func (x *Executor) callWorkflowForValue(ctx context.Context, name string) (any, error) {
	depth := 0
	if f := x.Frame(ctx); f != nil {
		depth = f.Depth
	}
	return x.workflows.Call(ctx, name, nil, depth)
}

// RunWorkflow is the workflowmgr.BlockRunner bound into the workflow
// manager: it seeds ctx with frame's scope/frame and walks wf's body,
// unwrapping a SignalReturn into a plain return value.
func (x *Executor) RunWorkflow(ctx context.Context, wf *ir.Workflow, frame *runtime.CallFrame) (any, error) {
	ctx = x.WithFrame(ctx, frame)
	ctx = x.WithScope(ctx, frame.Scope)

	flow, err := x.RunBlock(ctx, wf.Body)
	if err != nil {
		return nil, err
	}
	if flow.Signal == vm.SignalReturn {
		return flow.Value, nil
	}
	return nil, nil
}

func branchesOf(inputs map[string]*ir.Input) map[string]*ir.Block {
	var out map[string]*ir.Block
	for name, in := range inputs {
		if in != nil && in.Tag == ir.TagBranch {
			if out == nil {
				out = make(map[string]*ir.Block)
			}
			out[name] = in.Branch
		}
	}
	return out
}

func annotateNode(err error, nodeID string) error {
	if err == nil || nodeID == "" {
		return err
	}
	if le, ok := err.(*lexerr.Error); ok {
		if le.NodeID == "" {
			le.NodeID = nodeID
		}
		return le
	}
	return lexerr.Wrap(lexerr.KindOpcode, component, err, "opcode execution failed").WithNode(nodeID)
}
