package opcodes

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/lexflow/internal/ir"
	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/registry"
	"github.com/lyzr/lexflow/internal/vm"
)

func durationFromSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// mustRegister registers a built-in opcode at package init; a failure
// here means a built-in's own interface is malformed, which is a
// programming error worth panicking on rather than threading an error
// return through every init().
func mustRegister(reg *registry.Registry, iface registry.Interface, handler vm.Handler) {
	if err := reg.Register(iface, handler); err != nil {
		panic(err)
	}
}

const component = "opcodes"

// truthy applies LexFlow's boolean-coercion rule for control-flow
// conditions: nil, false, zero numbers, and empty strings/collections
// are falsy; everything else is truthy.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// toFloat64 converts the numeric types a decoded JSON/YAML value can
// take on into a float64; ok is false for anything else.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func evalFloat(ctx context.Context, m vm.Machine, input *ir.Input, fallback float64) (float64, error) {
	if input == nil {
		return fallback, nil
	}
	v, err := m.Eval(ctx, input)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat64(v)
	if !ok {
		return 0, lexerr.New(lexerr.KindTypeMismatch, component, "expected a number, got %T", v)
	}
	return f, nil
}

func evalString(ctx context.Context, m vm.Machine, input *ir.Input) (string, error) {
	v, err := m.Eval(ctx, input)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", lexerr.New(lexerr.KindTypeMismatch, component, "expected a string, got %T", v)
	}
	return s, nil
}

func evalList(ctx context.Context, m vm.Machine, input *ir.Input) ([]any, error) {
	v, err := m.Eval(ctx, input)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, lexerr.New(lexerr.KindTypeMismatch, component, "expected a list, got %T", v)
	}
	return list, nil
}

// evalIterable resolves input the way a foreach/async_foreach's ITERABLE
// accepts it (spec.md §4.4): a list is iterated as-is, a dict is
// iterated over its keys, matching the original's dict-ITERABLE
// behavior (tests/integration/async_features/test_async_foreach.py's
// test_async_foreach_dict).
func evalIterable(ctx context.Context, m vm.Machine, input *ir.Input) ([]any, error) {
	v, err := m.Eval(ctx, input)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		keys := make([]any, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		return keys, nil
	default:
		return nil, lexerr.New(lexerr.KindTypeMismatch, component, "expected a list or dict, got %T", v)
	}
}

func requireInput(call *vm.Call, name string) (*ir.Input, error) {
	in, ok := call.Inputs[name]
	if !ok || in == nil {
		return nil, lexerr.New(lexerr.KindArity, component, "opcode %q: missing required input %q", call.Opcode, name)
	}
	return in, nil
}

func requireBranch(call *vm.Call, name string) (*ir.Block, error) {
	b, ok := call.Branches[name]
	if !ok || b == nil {
		return nil, lexerr.New(lexerr.KindArity, component, "opcode %q: missing required branch %q", call.Opcode, name)
	}
	return b, nil
}

// stringify renders a value for the print opcode and for generic
// concatenation, matching fmt's default verb rather than inventing a
// bespoke formatter.
func stringify(v any) string {
	return fmt.Sprintf("%v", v)
}
