// Control-flow opcodes: the handlers spec.md §4.4 describes as receiving
// raw Inputs/Branches rather than eagerly-evaluated Args, so they can
// defer evaluation (a while-loop condition re-checked every iteration)
// and decide which nested Block, if any, to run.
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
		Opcode: "workflow_start", Control: true,
		Doc: "Marks the entry statement of a workflow body; does nothing.",
	}, workflowStart)

	mustRegister(reg, registry.Interface{
		Opcode: "workflow_return", Control: true,
		Params: []registry.Param{{Name: "value", Type: registry.ParamAny}},
		Doc:    "Unwinds the current call with the given value as its return value.",
	}, workflowReturn)

	mustRegister(reg, registry.Interface{
		Opcode: "control_if", Control: true,
		Params: []registry.Param{{Name: "condition", Type: registry.ParamBool, Required: true}},
		Doc:    "Runs the \"then\" branch if condition is truthy, else \"else\" if present.",
	}, controlIf)

	mustRegister(reg, registry.Interface{
		Opcode: "control_while", Control: true,
		Params: []registry.Param{{Name: "condition", Type: registry.ParamBool, Required: true}},
		Doc:    "Runs \"body\" while condition stays truthy, re-evaluating it each iteration.",
	}, controlWhile)

	mustRegister(reg, registry.Interface{
		Opcode: "control_for", Control: true,
		Params: []registry.Param{
			{Name: "var", Type: registry.ParamString, Required: true},
			{Name: "start", Type: registry.ParamFloat, Required: true},
			{Name: "stop", Type: registry.ParamFloat, Required: true},
			{Name: "step", Type: registry.ParamFloat},
		},
		Doc: "Runs \"body\" once per value in [start, stop) stepping by step (default 1), binding var.",
	}, controlFor)

	mustRegister(reg, registry.Interface{
		Opcode: "control_foreach", Control: true,
		Params: []registry.Param{
			{Name: "var", Type: registry.ParamString, Required: true},
			{Name: "list", Type: registry.ParamList, Required: true},
		},
		Doc: "Runs \"body\" once per element of list, in order, binding var.",
	}, controlForeach)

	mustRegister(reg, registry.Interface{
		Opcode: "control_async_foreach", Control: true,
		Params: []registry.Param{
			{Name: "var", Type: registry.ParamString, Required: true},
			{Name: "list", Type: registry.ParamList, Required: true},
		},
		Doc: "Runs \"body\" once per element of list (or key of a dict), in order, awaiting each iteration before starting the next.",
	}, controlAsyncForeach)
}

func workflowStart(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	return vm.NoFlow, nil
}

func workflowReturn(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	var value any
	if input, ok := call.Inputs["value"]; ok {
		v, err := m.Eval(ctx, input)
		if err != nil {
			return nil, err
		}
		value = v
	}
	return vm.Flow{Signal: vm.SignalReturn, Value: value}, nil
}

func controlIf(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	condInput, err := requireInput(call, "condition")
	if err != nil {
		return nil, err
	}
	condVal, err := m.Eval(ctx, condInput)
	if err != nil {
		return nil, err
	}

	var branch = "else"
	if truthy(condVal) {
		branch = "then"
	}
	block, ok := call.Branches[branch]
	if !ok {
		return vm.NoFlow, nil
	}
	flow, err := m.RunBlock(m.WithChildScope(ctx), block)
	if err != nil {
		return nil, err
	}
	return flow, nil
}

func controlWhile(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	condInput, err := requireInput(call, "condition")
	if err != nil {
		return nil, err
	}
	body, err := requireBranch(call, "body")
	if err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		condVal, err := m.Eval(ctx, condInput)
		if err != nil {
			return nil, err
		}
		if !truthy(condVal) {
			return vm.NoFlow, nil
		}

		flow, err := m.RunBlock(m.WithChildScope(ctx), body)
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
}

func controlFor(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	varInput, err := requireInput(call, "var")
	if err != nil {
		return nil, err
	}
	varName, err := evalString(ctx, m, varInput)
	if err != nil {
		return nil, err
	}
	startInput, err := requireInput(call, "start")
	if err != nil {
		return nil, err
	}
	stopInput, err := requireInput(call, "stop")
	if err != nil {
		return nil, err
	}
	start, err := evalFloat(ctx, m, startInput, 0)
	if err != nil {
		return nil, err
	}
	stop, err := evalFloat(ctx, m, stopInput, 0)
	if err != nil {
		return nil, err
	}
	step, err := evalFloat(ctx, m, call.Inputs["step"], 1)
	if err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, lexerr.New(lexerr.KindValidation, component, "control_for: step must not be 0")
	}
	body, err := requireBranch(call, "body")
	if err != nil {
		return nil, err
	}

	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterCtx := m.WithChildScope(ctx)
		m.Scope(iterCtx).Declare(varName, i)

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

func controlForeach(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
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
