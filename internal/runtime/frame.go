package runtime

// CallFrame records one level of workflow-call nesting: which workflow is
// running, its parameter/local scope, and its depth — used by
// WorkflowManager to enforce spec.md §4.6's call-depth limit.
type CallFrame struct {
	WorkflowName string
	Scope        *Scope
	Depth        int
}

// NewCallFrame builds the frame for a fresh workflow invocation: a new
// root scope (no parent) seeded with locals. The callee does not see the
// caller's bindings — see spec.md §5 on scope chains being shared by
// reference across forked/spawned tasks, not across independent workflow
// calls, which get a fresh chain rooted at their own locals.
func NewCallFrame(workflowName string, locals map[string]any, depth int) *CallFrame {
	return &CallFrame{
		WorkflowName: workflowName,
		Scope:        NewScope(locals),
		Depth:        depth,
	}
}
