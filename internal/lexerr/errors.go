// Package lexerr defines the error taxonomy shared by every LexFlow
// component (spec.md §7). Each error carries the structured fields a
// caller needs to locate the failure (component, workflow, node id) and
// wraps its cause so callers can still errors.Is/errors.As through it.
package lexerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy's buckets.
type Kind string

const (
	KindValidation         Kind = "workflow_validation"
	KindJSONParse           Kind = "json_parse"
	KindWorkflowNotFound    Kind = "workflow_not_found"
	KindUnknownOpcode       Kind = "unknown_opcode"
	KindArity               Kind = "arity"
	KindUnknownParam        Kind = "unknown_param"
	KindTypeMismatch        Kind = "type_mismatch"
	KindUnboundVariable     Kind = "unbound_variable"
	KindPrivilegedNotInject Kind = "privileged_not_injected"
	KindStackOverflow       Kind = "stack_overflow"
	KindTimeoutExceeded     Kind = "timeout_exceeded"
	KindCancelled           Kind = "cancelled"
	KindSendOnClosed        Kind = "send_on_closed"
	KindOpcode              Kind = "opcode_error"
	KindRuntime             Kind = "runtime_error"
)

// Error is the concrete error type for every LexFlow failure.
type Error struct {
	Kind      Kind
	Message   string
	Component string
	Workflow  string
	NodeID    string
	Cause     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Workflow != "" {
		msg = fmt.Sprintf("%s (workflow=%s", msg, e.Workflow)
		if e.NodeID != "" {
			msg = fmt.Sprintf("%s node=%s", msg, e.NodeID)
		}
		msg += ")"
	} else if e.NodeID != "" {
		msg = fmt.Sprintf("%s (node=%s)", msg, e.NodeID)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, component, format string, args ...any) *Error {
	return &Error{Kind: kind, Component: component, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, component string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Component: component, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithNode attaches node id diagnostic context and returns the receiver.
func (e *Error) WithNode(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithWorkflow attaches workflow diagnostic context and returns the receiver.
func (e *Error) WithWorkflow(name string) *Error {
	e.Workflow = name
	return e
}

// Is reports whether target is an *Error of the same Kind, so callers can
// do errors.Is(err, lexerr.New(lexerr.KindStackOverflow, "", "")) style
// checks, or more idiomatically compare via KindOf.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return "", false
}
