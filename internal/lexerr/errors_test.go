package lexerr

import (
	"errors"
	"testing"
)

func TestNewAndError(t *testing.T) {
	err := New(KindValidation, "preprocess", "unknown input tag %q", "wat")
	if err.Kind != KindValidation {
		t.Fatalf("Kind = %v, want %v", err.Kind, KindValidation)
	}
	if got := err.Error(); got != `workflow_validation: unknown input tag "wat"` {
		t.Fatalf("Error() = %q", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindOpcode, "executor", cause, "opcode failed")

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should find the wrapped cause")
	}
	var le *Error
	if !errors.As(err, &le) {
		t.Fatal("errors.As should unwrap to *Error")
	}
	if le.Cause != cause {
		t.Fatalf("Cause = %v, want %v", le.Cause, cause)
	}
}

func TestWithNodeAndWorkflow(t *testing.T) {
	err := New(KindUnboundVariable, "evaluator", "unbound variable %q", "total").
		WithWorkflow("sum").WithNode("n3")

	if err.Workflow != "sum" || err.NodeID != "n3" {
		t.Fatalf("got workflow=%q node=%q", err.Workflow, err.NodeID)
	}
	want := `unbound_variable: unbound variable "total" (workflow=sum node=n3)`
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestKindOf(t *testing.T) {
	err := New(KindStackOverflow, "workflowmgr", "call depth exceeded")
	kind, ok := KindOf(err)
	if !ok || kind != KindStackOverflow {
		t.Fatalf("KindOf = %v, %v", kind, ok)
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatal("KindOf should not match a non-lexerr error")
	}
}

func TestIsComparesKindOnly(t *testing.T) {
	a := New(KindArity, "workflowmgr", "missing argument")
	b := New(KindArity, "evaluator", "different message entirely")
	c := New(KindTypeMismatch, "workflowmgr", "missing argument")

	if !a.Is(b) {
		t.Fatal("errors of the same Kind should be Is-equal regardless of message")
	}
	if a.Is(c) {
		t.Fatal("errors of different Kind should not be Is-equal")
	}
}
