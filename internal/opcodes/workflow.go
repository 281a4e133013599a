// workflow_call: the control opcode form of cross-workflow invocation
// (spec.md §4.6). A bare WORKFLOW_CALL(name) Input (evaluated via
// internal/evaluator) covers the common case of calling a zero-argument
// workflow for its value; this opcode covers the general case of a
// Statement that calls a named workflow with actual arguments bound by
// input name and optionally stores the result into a local variable.
package opcodes

import (
	"context"

	"github.com/lyzr/lexflow/internal/registry"
	"github.com/lyzr/lexflow/internal/vm"
)

func init() {
	mustRegister(registry.Default(), registry.Interface{
		Opcode: "workflow_call", Control: true,
		Params: []registry.Param{{Name: "workflow", Type: registry.ParamString, Required: true}},
		Doc:    "Calls another workflow by name, binding every other input to its matching parameter.",
	}, workflowCall)
}

func workflowCall(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	nameInput, err := requireInput(call, "workflow")
	if err != nil {
		return nil, err
	}
	name, err := evalString(ctx, m, nameInput)
	if err != nil {
		return nil, err
	}

	actuals := make(map[string]any, len(call.Inputs))
	for key, input := range call.Inputs {
		if key == "workflow" || key == "as" {
			continue
		}
		v, err := m.Eval(ctx, input)
		if err != nil {
			return nil, err
		}
		actuals[key] = v
	}

	depth := 0
	if f := m.Frame(ctx); f != nil {
		depth = f.Depth
	}

	result, err := m.Workflows().Call(ctx, name, actuals, depth)
	if err != nil {
		return nil, err
	}

	if asInput, ok := call.Inputs["as"]; ok {
		varName, err := evalString(ctx, m, asInput)
		if err != nil {
			return nil, err
		}
		m.Scope(ctx).Set(varName, result)
	}

	return vm.NoFlow, nil
}
