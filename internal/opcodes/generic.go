// Generic value/data opcodes: variable assignment, arithmetic and
// comparison primitives, list/dict accessors, JSON field extraction via
// gjson, free-form expression evaluation via CEL, and print. These exist
// alongside the control-flow opcodes so a program built purely from
// built-ins can still do useful work; spec.md's domain-opcode library
// (the actual node catalog a production deployment would register) is
// out of scope (spec.md §1 Non-goals) — these are intentionally generic
// primitives, not a stand-in for it.
package opcodes

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/lyzr/lexflow/internal/celexpr"
	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/registry"
	"github.com/lyzr/lexflow/internal/vm"
)

var celEvaluator = celexpr.NewEvaluator()

func init() {
	reg := registry.Default()

	mustRegister(reg, registry.Interface{
		Opcode: "var_set", Control: true,
		Params: []registry.Param{{Name: "name", Type: registry.ParamString, Required: true}},
		Doc:    "Assigns the \"value\" input to variable name in the innermost scope that already declares it.",
	}, varSet)

	mustRegister(reg, registry.Interface{
		Opcode: "op_add", Return: registry.ParamFloat,
		Params: []registry.Param{
			{Name: "a", Type: registry.ParamAny, Required: true},
			{Name: "b", Type: registry.ParamAny, Required: true},
		},
		Doc: "Adds two numbers, or concatenates if either is a string.",
	}, opAdd)

	mustRegister(reg, registry.Interface{
		Opcode: "op_sub", Return: registry.ParamFloat,
		Params: []registry.Param{
			{Name: "a", Type: registry.ParamFloat, Required: true},
			{Name: "b", Type: registry.ParamFloat, Required: true},
		},
	}, numOp(func(a, b float64) float64 { return a - b }))

	mustRegister(reg, registry.Interface{
		Opcode: "op_mul", Return: registry.ParamFloat,
		Params: []registry.Param{
			{Name: "a", Type: registry.ParamFloat, Required: true},
			{Name: "b", Type: registry.ParamFloat, Required: true},
		},
	}, numOp(func(a, b float64) float64 { return a * b }))

	mustRegister(reg, registry.Interface{
		Opcode: "op_gt", Return: registry.ParamBool,
		Params: []registry.Param{
			{Name: "a", Type: registry.ParamFloat, Required: true},
			{Name: "b", Type: registry.ParamFloat, Required: true},
		},
	}, cmpOp(func(a, b float64) bool { return a > b }))

	mustRegister(reg, registry.Interface{
		Opcode: "op_lt", Return: registry.ParamBool,
		Params: []registry.Param{
			{Name: "a", Type: registry.ParamFloat, Required: true},
			{Name: "b", Type: registry.ParamFloat, Required: true},
		},
	}, cmpOp(func(a, b float64) bool { return a < b }))

	mustRegister(reg, registry.Interface{
		Opcode: "op_eq", Return: registry.ParamBool,
		Params: []registry.Param{
			{Name: "a", Type: registry.ParamAny, Required: true},
			{Name: "b", Type: registry.ParamAny, Required: true},
		},
	}, opEq)

	mustRegister(reg, registry.Interface{
		Opcode: "list_len", Return: registry.ParamInt,
		Params: []registry.Param{{Name: "list", Type: registry.ParamList, Required: true}},
	}, listLen)

	mustRegister(reg, registry.Interface{
		Opcode: "list_get", Return: registry.ParamAny,
		Params: []registry.Param{
			{Name: "list", Type: registry.ParamList, Required: true},
			{Name: "index", Type: registry.ParamInt, Required: true},
		},
	}, listGet)

	mustRegister(reg, registry.Interface{
		Opcode: "dict_keys", Return: registry.ParamList,
		Params: []registry.Param{{Name: "dict", Type: registry.ParamDict, Required: true}},
	}, dictKeys)

	mustRegister(reg, registry.Interface{
		Opcode: "field_get", Return: registry.ParamAny,
		Params: []registry.Param{
			{Name: "json", Type: registry.ParamString, Required: true},
			{Name: "path", Type: registry.ParamString, Required: true},
		},
		Doc: "Extracts path from a JSON document string using gjson syntax.",
	}, fieldGet)

	mustRegister(reg, registry.Interface{
		Opcode: "expr_cel", Return: registry.ParamAny,
		Params: []registry.Param{{Name: "expr", Type: registry.ParamString, Required: true}},
		Doc:    "Evaluates a CEL expression against every variable visible in the current scope.",
	}, exprCEL)

	mustRegister(reg, registry.Interface{
		Opcode: "print",
		Params: []registry.Param{{Name: "value", Type: registry.ParamAny, Required: true}},
		Doc:    "Logs value at info level; returns it unchanged.",
	}, printOpcode)
}

func varSet(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	nameInput, err := requireInput(call, "name")
	if err != nil {
		return nil, err
	}
	name, err := evalString(ctx, m, nameInput)
	if err != nil {
		return nil, err
	}
	var value any
	if valueInput, ok := call.Inputs["value"]; ok {
		value, err = m.Eval(ctx, valueInput)
		if err != nil {
			return nil, err
		}
	}
	m.Scope(ctx).Set(name, value)
	return vm.NoFlow, nil
}

func opAdd(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	a, b := call.Args["a"], call.Args["b"]
	if as, ok := a.(string); ok {
		return as + stringify(b), nil
	}
	if bs, ok := b.(string); ok {
		return stringify(a) + bs, nil
	}
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if !aok || !bok {
		return nil, lexerr.New(lexerr.KindTypeMismatch, component, "op_add: expected numbers or strings, got %T and %T", a, b)
	}
	return af + bf, nil
}

func numOp(fn func(a, b float64) float64) vm.Handler {
	return func(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
		a, ok := toFloat64(call.Args["a"])
		if !ok {
			return nil, lexerr.New(lexerr.KindTypeMismatch, component, "%s: a must be a number", call.Opcode)
		}
		b, ok := toFloat64(call.Args["b"])
		if !ok {
			return nil, lexerr.New(lexerr.KindTypeMismatch, component, "%s: b must be a number", call.Opcode)
		}
		return fn(a, b), nil
	}
}

func cmpOp(fn func(a, b float64) bool) vm.Handler {
	return func(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
		a, ok := toFloat64(call.Args["a"])
		if !ok {
			return nil, lexerr.New(lexerr.KindTypeMismatch, component, "%s: a must be a number", call.Opcode)
		}
		b, ok := toFloat64(call.Args["b"])
		if !ok {
			return nil, lexerr.New(lexerr.KindTypeMismatch, component, "%s: b must be a number", call.Opcode)
		}
		return fn(a, b), nil
	}
}

func opEq(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	a, b := call.Args["a"], call.Args["b"]
	if af, aok := toFloat64(a); aok {
		if bf, bok := toFloat64(b); bok {
			return af == bf, nil
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) && sameType(a, b), nil
}

func sameType(a, b any) bool {
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

func listLen(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	list, ok := call.Args["list"].([]any)
	if !ok {
		return nil, lexerr.New(lexerr.KindTypeMismatch, component, "list_len: expected a list, got %T", call.Args["list"])
	}
	return float64(len(list)), nil
}

func listGet(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	list, ok := call.Args["list"].([]any)
	if !ok {
		return nil, lexerr.New(lexerr.KindTypeMismatch, component, "list_get: expected a list, got %T", call.Args["list"])
	}
	idxF, ok := toFloat64(call.Args["index"])
	if !ok {
		return nil, lexerr.New(lexerr.KindTypeMismatch, component, "list_get: index must be a number")
	}
	idx := int(idxF)
	if idx < 0 || idx >= len(list) {
		return nil, lexerr.New(lexerr.KindValidation, component, "list_get: index %d out of range [0, %d)", idx, len(list))
	}
	return list[idx], nil
}

func dictKeys(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	dict, ok := call.Args["dict"].(map[string]any)
	if !ok {
		return nil, lexerr.New(lexerr.KindTypeMismatch, component, "dict_keys: expected a dict, got %T", call.Args["dict"])
	}
	keys := make([]any, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	return keys, nil
}

func fieldGet(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	doc, ok := call.Args["json"].(string)
	if !ok {
		return nil, lexerr.New(lexerr.KindTypeMismatch, component, "field_get: json must be a string")
	}
	path, ok := call.Args["path"].(string)
	if !ok {
		return nil, lexerr.New(lexerr.KindTypeMismatch, component, "field_get: path must be a string")
	}
	result := gjson.Get(doc, path)
	if !result.Exists() {
		return nil, nil
	}
	return result.Value(), nil
}

func exprCEL(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	expr, ok := call.Args["expr"].(string)
	if !ok {
		return nil, lexerr.New(lexerr.KindTypeMismatch, component, "expr_cel: expr must be a string")
	}
	return celEvaluator.Eval(expr, m.Scope(ctx).Flatten())
}

func printOpcode(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	v := call.Args["value"]
	m.Logger().InfoContext(ctx, "print", "value", v)
	return v, nil
}
