// Task introspection/control opcodes over the task ids control_spawn
// binds into scope through its "as" input (spec.md §4.7).
package opcodes

import (
	"context"

	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/registry"
	"github.com/lyzr/lexflow/internal/vm"
)

func init() {
	reg := registry.Default()

	mustRegister(reg, registry.Interface{
		Opcode: "task_await",
		Params: []registry.Param{
			{Name: "task_id", Type: registry.ParamString, Required: true},
			{Name: "timeout_seconds", Type: registry.ParamFloat},
		},
		Return: registry.ParamAny,
		Doc:    "Blocks until task_id finishes and returns its result (or its error, surfaced as a failure). timeout_seconds overrides the Runtime's configured default await timeout; omitting it uses that default (0 meaning wait indefinitely).",
	}, taskAwait)

	mustRegister(reg, registry.Interface{
		Opcode: "task_cancel",
		Params: []registry.Param{{Name: "task_id", Type: registry.ParamString, Required: true}},
		Doc:    "Requests task_id's context be cancelled.",
	}, taskCancel)

	mustRegister(reg, registry.Interface{
		Opcode: "task_is_done",
		Params: []registry.Param{{Name: "task_id", Type: registry.ParamString, Required: true}},
		Return: registry.ParamBool,
		Doc:    "Reports whether task_id has finished.",
	}, taskIsDone)

	mustRegister(reg, registry.Interface{
		Opcode: "task_exception",
		Params: []registry.Param{{Name: "task_id", Type: registry.ParamString, Required: true}},
		Return: registry.ParamAny,
		Doc:    "Returns task_id's error outcome, or nil if it succeeded or hasn't finished.",
	}, taskException)

	mustRegister(reg, registry.Interface{
		Opcode: "task_list",
		Return: registry.ParamList,
		Doc:    "Lists every currently-tracked task id.",
	}, taskList)
}

func taskIDArg(call *vm.Call) (string, error) {
	id, ok := call.Args["task_id"].(string)
	if !ok || id == "" {
		return "", lexerr.New(lexerr.KindArity, component, "opcode %q: task_id must be a non-empty string", call.Opcode)
	}
	return id, nil
}

func taskAwait(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	id, err := taskIDArg(call)
	if err != nil {
		return nil, err
	}
	timeout := m.Tasks().DefaultAwait()
	if v, ok := call.Args["timeout_seconds"]; ok {
		if f, ok := toFloat64(v); ok {
			timeout = durationFromSeconds(f)
		}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return m.Tasks().Await(ctx, id)
}

func taskCancel(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	id, err := taskIDArg(call)
	if err != nil {
		return nil, err
	}
	return nil, m.Tasks().Cancel(id)
}

func taskIsDone(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	id, err := taskIDArg(call)
	if err != nil {
		return nil, err
	}
	return m.Tasks().IsDone(id)
}

func taskException(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	id, err := taskIDArg(call)
	if err != nil {
		return nil, err
	}
	taskErr, err := m.Tasks().Exception(id)
	if err != nil {
		return nil, err
	}
	if taskErr == nil {
		return nil, nil
	}
	return taskErr.Error(), nil
}

func taskList(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	ids := m.Tasks().List()
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out, nil
}
