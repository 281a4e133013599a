// Concurrency opcodes: async foreach, spawn, fork-join and timeout
// (spec.md §4.6/§4.7). Fork and spawn deliberately hand the spawned
// goroutine the SAME *runtime.Scope as the statement that launched it —
// scope chains are shared by reference across forked/spawned tasks, not
// copied (spec.md §5) — while async_timeout's body and control_fork's
// branches run under a context derived from the call's own ctx so they
// are cancelled together with it, and control_spawn instead derives from
// Machine.RootContext so the spawned task outlives the returning call.
package opcodes

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/registry"
	"github.com/lyzr/lexflow/internal/vm"
)

func init() {
	reg := registry.Default()

	mustRegister(reg, registry.Interface{
		Opcode: "control_spawn", Control: true,
		Doc: "Starts \"body\" as a background task owned by the Runtime; binds its task id to the variable named by \"as\" when given.",
	}, controlSpawn)

	mustRegister(reg, registry.Interface{
		Opcode: "control_fork", Control: true,
		Doc: "Runs every branch input concurrently and waits for all to finish (fork-join).",
	}, controlFork)

	mustRegister(reg, registry.Interface{
		Opcode: "async_timeout", Control: true,
		Params: []registry.Param{{Name: "seconds", Type: registry.ParamFloat, Required: true}},
		Doc:    "Runs \"body\" with a deadline; runs \"fallback\" (if present) if it exceeds seconds.",
	}, asyncTimeout)

	mustRegister(reg, registry.Interface{
		Opcode: "async_sleep",
		Params: []registry.Param{{Name: "seconds", Type: registry.ParamFloat, Required: true}},
		Doc:    "Suspends the current task for \"seconds\"; a cancelled or timed-out ctx wakes it early.",
	}, asyncSleep)
}

func asyncSleep(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	secInput, err := requireInput(call, "seconds")
	if err != nil {
		return nil, err
	}
	seconds, err := evalFloat(ctx, m, secInput, 0)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(durationFromSeconds(seconds))
	defer timer.Stop()
	select {
	case <-timer.C:
		return vm.NoFlow, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// controlAsyncForeach iterates in declaration order, awaiting each
// iteration before starting the next — it does not fan out goroutines.
// The original's async foreach over a plain list/dict "falls back to
// sync iteration" (tests/integration/async_features/test_async_foreach.py,
// test_async_foreach_basic's docstring); spec.md §4.4 itself describes
// async_foreach as awaiting between iterations, not running them
// concurrently. A genuinely concurrent element-wise fan-out belongs to
// control_fork/control_spawn instead, which hand out distinct branches
// an author partitions variables across — a shared accumulator written
// from every iteration (spec.md §8 scenario 2) is only well-defined run
// sequentially.
func controlAsyncForeach(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	varInput, err := requireInput(call, "var")
	if err != nil {
		return nil, err
	}
	varName, err := evalString(ctx, m, varInput)
	if err != nil {
		return nil, err
	}
	listInput, err := requireInput(call, "list")
	if err != nil {
		return nil, err
	}
	list, err := evalIterable(ctx, m, listInput)
	if err != nil {
		return nil, err
	}
	body, err := requireBranch(call, "body")
	if err != nil {
		return nil, err
	}

	for _, item := range list {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterCtx := m.WithChildScope(ctx)
		m.Scope(iterCtx).Declare(varName, item)

		flow, err := m.RunBlock(iterCtx, body)
		if err != nil {
			return nil, err
		}
		switch flow.Signal {
		case vm.SignalBreak:
			return vm.NoFlow, nil
		case vm.SignalContinueLoop:
			continue
		case vm.SignalReturn:
			return flow, nil
		}
	}
	return vm.NoFlow, nil
}

func controlSpawn(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	body, err := requireBranch(call, "body")
	if err != nil {
		return nil, err
	}

	scope := m.Scope(ctx)
	frame := m.Frame(ctx)
	task := m.Tasks().Spawn(m.RootContext(), func(taskCtx context.Context) (any, error) {
		taskCtx = m.WithScope(taskCtx, scope)
		taskCtx = m.WithFrame(taskCtx, frame)
		flow, err := m.RunBlock(taskCtx, body)
		if err != nil {
			return nil, err
		}
		return flow.Value, nil
	})

	// The spawned task id is the only way a later task_await/task_cancel
	// can reach this task; "as" binds it into scope the same way
	// workflow_call's "as" binds a call's return value.
	if asInput, ok := call.Inputs["as"]; ok {
		varName, err := evalString(ctx, m, asInput)
		if err != nil {
			return nil, err
		}
		scope.Set(varName, task.ID)
	}

	return vm.NoFlow, nil
}

// controlFork runs every branch concurrently and joins on all of them
// (spec.md §4.4's fork-join contract). A branch that signals RETURN
// cancels every other still-running branch rather than waiting for them
// to finish on their own — the forked-join is done the moment any one
// branch decides the call is over.
func controlFork(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	if len(call.Branches) == 0 {
		return vm.NoFlow, nil
	}

	forkCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(forkCtx)
	scope := m.Scope(ctx)

	var mu sync.Mutex
	var returning *vm.Flow

	for _, branch := range call.Branches {
		branch := branch
		g.Go(func() error {
			branchCtx := m.WithScope(gctx, scope)
			flow, err := m.RunBlock(branchCtx, branch)
			if err != nil {
				return err
			}
			if flow.Signal == vm.SignalReturn {
				mu.Lock()
				if returning == nil {
					returning = &flow
				}
				mu.Unlock()
				cancel()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && returning == nil {
		return nil, err
	}
	if returning != nil {
		return *returning, nil
	}
	return vm.NoFlow, nil
}

func asyncTimeout(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	secInput, err := requireInput(call, "seconds")
	if err != nil {
		return nil, err
	}
	seconds, err := evalFloat(ctx, m, secInput, 0)
	if err != nil {
		return nil, err
	}
	body, err := requireBranch(call, "body")
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, durationFromSeconds(seconds))
	defer cancel()

	flow, err := m.RunBlock(timeoutCtx, body)
	if err == context.DeadlineExceeded || timeoutCtx.Err() == context.DeadlineExceeded {
		if fallback, ok := call.Branches["fallback"]; ok {
			return m.RunBlock(ctx, fallback)
		}
		return nil, lexerr.New(lexerr.KindTimeoutExceeded, component, "async_timeout exceeded %.3fs", seconds)
	}
	if err != nil {
		return nil, err
	}
	return flow, nil
}
