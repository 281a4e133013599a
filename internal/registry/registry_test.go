package registry

import (
	"context"
	"testing"

	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/vm"
)

func echoHandler(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	return call.Args["value"], nil
}

func TestRegisterAndInvoke(t *testing.T) {
	r := New()
	err := r.Register(Interface{Opcode: "echo", Params: []Param{{Name: "value", Type: ParamAny}}}, echoHandler)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	out, err := r.Invoke(context.Background(), nil, &vm.Call{Opcode: "echo", Args: map[string]any{"value": "hi"}})
	if err != nil || out != "hi" {
		t.Fatalf("Invoke = %v, %v", out, err)
	}
}

func TestInvokeUnknownOpcode(t *testing.T) {
	r := New()
	_, err := r.Invoke(context.Background(), nil, &vm.Call{Opcode: "nope"})
	kind, ok := lexerr.KindOf(err)
	if !ok || kind != lexerr.KindUnknownOpcode {
		t.Fatalf("kind = %v, %v, want %v", kind, ok, lexerr.KindUnknownOpcode)
	}
}

func TestPrivilegedRequiresInjection(t *testing.T) {
	r := New()
	if err := r.Register(Interface{Opcode: "secret_op", Privileged: true}, echoHandler); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := r.Invoke(context.Background(), nil, &vm.Call{Opcode: "secret_op"})
	kind, ok := lexerr.KindOf(err)
	if !ok || kind != lexerr.KindPrivilegedNotInject {
		t.Fatalf("kind = %v, %v, want %v", kind, ok, lexerr.KindPrivilegedNotInject)
	}

	if err := r.Inject("secret_op", "a-dependency"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	out, err := r.Invoke(context.Background(), nil, &vm.Call{Opcode: "secret_op", Args: map[string]any{"value": 7}})
	if err != nil || out != 7 {
		t.Fatalf("Invoke after Inject = %v, %v", out, err)
	}

	r.ClearInjection("secret_op")
	if _, err := r.Invoke(context.Background(), nil, &vm.Call{Opcode: "secret_op"}); err == nil {
		t.Fatal("Invoke after ClearInjection should fail again")
	}
}

func TestInjectNonPrivilegedOpcodeFails(t *testing.T) {
	r := New()
	if err := r.Register(Interface{Opcode: "plain"}, echoHandler); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Inject("plain", "dep"); err == nil {
		t.Fatal("Inject on a non-privileged opcode should fail")
	}
}

func TestPrivateOpcodesHiddenFromIntrospection(t *testing.T) {
	r := New()
	if err := r.Register(Interface{Opcode: "_internal"}, echoHandler); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(Interface{Opcode: "public_op"}, echoHandler); err != nil {
		t.Fatalf("Register: %v", err)
	}

	names := r.ListOpcodes()
	if len(names) != 1 || names[0] != "public_op" {
		t.Fatalf("ListOpcodes = %v, want only [public_op]", names)
	}
	if _, ok := r.GetInterface("_internal"); ok {
		t.Fatal("GetInterface should refuse a private opcode")
	}

	// Still dispatchable via Invoke even though hidden from introspection.
	out, err := r.Invoke(context.Background(), nil, &vm.Call{Opcode: "_internal", Args: map[string]any{"value": 1}})
	if err != nil || out != 1 {
		t.Fatalf("Invoke(_internal) = %v, %v", out, err)
	}
}

func TestListOpcodesSorted(t *testing.T) {
	r := New()
	for _, name := range []string{"zeta", "alpha", "mu"} {
		if err := r.Register(Interface{Opcode: name}, echoHandler); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
	got := r.ListOpcodes()
	want := []string{"alpha", "mu", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListOpcodes = %v, want %v", got, want)
		}
	}
}
