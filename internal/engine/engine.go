// Package engine is the Engine façade (spec.md §1/§4): it takes an
// already-lowered Program and runs it any number of times, building a
// fresh Evaluator/TaskManager/WorkflowManager/Executor per run so that
// concurrent or repeated invocations of the same Program never share
// task-manager or scope state. Bootstrap shape follows the teacher's
// common/bootstrap.Setup: take a loaded config and logger, wire
// components, guarantee teardown on every exit path.
package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/lyzr/lexflow/common/config"
	"github.com/lyzr/lexflow/common/logger"
	"github.com/lyzr/lexflow/internal/channel"
	"github.com/lyzr/lexflow/internal/evaluator"
	"github.com/lyzr/lexflow/internal/executor"
	"github.com/lyzr/lexflow/internal/ir"
	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/metrics"
	"github.com/lyzr/lexflow/internal/registry"
	"github.com/lyzr/lexflow/internal/taskmanager"
	"github.com/lyzr/lexflow/internal/workflowmgr"
)

const component = "engine"

// Result bundles one Run invocation's outcome.
type Result struct {
	RunID   string
	Value   any
	Metrics map[string]any
}

// Engine binds a compiled Program to the opcode registry it runs
// against. It is safe to call Run repeatedly and concurrently — each
// call builds its own task manager and executor.
type Engine struct {
	config   *config.Config
	logger   *logger.Logger
	registry *registry.Registry
	program  *ir.Program
}

// New builds an Engine. The built-in opcode registry (registry.Default)
// is used directly — privileged opcodes a host wants to inject a
// dependency into should call Engine.Registry().Inject before Run.
func New(cfg *config.Config, log *logger.Logger, program *ir.Program) *Engine {
	return &Engine{config: cfg, logger: log, registry: registry.Default(), program: program}
}

// Registry exposes the opcode registry this Engine runs against, so a
// host can Inject dependencies into privileged opcodes before Run.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Run executes the Program's main workflow once, binding actuals to its
// declared parameters, and returns its result alongside a metrics
// snapshot (when config.Features.EnableMetrics is set). Every task the
// run spawns is cancelled and awaited, and every channel the run created
// is closed, before Run returns, on every exit path (spec.md §4.7/§8).
func (e *Engine) Run(ctx context.Context, actuals map[string]any) (*Result, error) {
	if e.program == nil || e.program.Main == nil {
		return nil, lexerr.New(lexerr.KindValidation, component, "engine has no main workflow to run")
	}

	runID := uuid.NewString()
	runLogger := e.logger.WithRunID(runID).WithWorkflow(e.program.Main.Name)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := taskmanager.New(e.config.Runtime.DefaultTaskAwait)
	defer tasks.Cleanup()

	channels := channel.NewRegistry(e.config.Channel.DefaultCapacity)
	defer channels.CloseAll()

	collector := metrics.New()

	eval := evaluator.New(e.program, e.registry)
	exec := executor.New(e.program, e.registry, eval, tasks, channels, runLogger.Logger, runCtx)
	if e.config.Features.EnableMetrics {
		exec.SetMetrics(collector)
	}

	wfMgr := workflowmgr.New(e.program, e.config.Runtime.MaxCallDepth, exec.RunWorkflow)
	exec.SetWorkflows(wfMgr)

	runLogger.InfoContext(runCtx, "run starting")

	value, err := wfMgr.Call(runCtx, e.program.Main.Name, actuals, 0)
	result := &Result{RunID: runID, Value: value, Metrics: collector.ToMap()}
	if err != nil {
		runLogger.ErrorContext(runCtx, "run failed", "error", err)
		return result, err
	}

	runLogger.InfoContext(runCtx, "run completed")
	return result, nil
}
