// Package registry implements the opcode registry (spec.md §4.2): typed
// interfaces, privileged (host-injected) opcodes, private (underscore
// prefixed) opcodes hidden from introspection, and the invoke path every
// executor statement goes through.
package registry

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/vm"
)

const component = "registry"

// ParamType names the accepted/declared shape of one parameter or return
// value. It is advisory — the evaluator does not enforce it — and exists
// so introspection (ListOpcodes/GetInterface) can describe an opcode's
// contract to a caller building a graph against this registry.
type ParamType string

const (
	ParamAny    ParamType = "any"
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
	ParamList   ParamType = "list"
	ParamDict   ParamType = "dict"
)

// Param describes one named input an opcode accepts.
type Param struct {
	Name     string
	Type     ParamType
	Required bool
}

// Interface is an opcode's full contract: its declared parameters (in
// the order arguments must be bound, per spec.md §4.3), return shape,
// and the two access-control bits spec.md §4.2 requires.
type Interface struct {
	Opcode string
	Doc    string
	Params []Param
	Return ParamType

	// Control marks an opcode that receives raw Inputs/Branches instead
	// of eagerly-evaluated Args — workflow control flow (control_if,
	// control_for, control_spawn, workflow_call, ...).
	Control bool

	// Privileged marks an opcode that will not run until the host injects
	// a dependency for it via Inject (e.g. an HTTP client, a secrets
	// store). Invoking a privileged opcode with nothing injected fails
	// with lexerr.KindPrivilegedNotInject.
	Privileged bool
}

// IsPrivate reports whether opcode is hidden from introspection —
// underscore-prefixed opcodes exist for internal/bootstrap use only.
func IsPrivate(opcode string) bool {
	return strings.HasPrefix(opcode, "_")
}

type entry struct {
	iface       Interface
	handler     vm.Handler
	injected    any
	hasInjected bool
}

// Registry is an isolated opcode table. Concurrent-safe: opcodes are
// typically all registered at startup, but Inject/ClearInjection may run
// while a program is executing.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns an empty, isolated Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-global registry every built-in opcode
// (internal/opcodes) registers itself into at package init.
func Default() *Registry {
	defaultOnce.Do(func() { defaultReg = New() })
	return defaultReg
}

// Register adds opcode to the table. Re-registering the same name
// replaces its entry — this lets a host override a built-in opcode.
func (r *Registry) Register(iface Interface, handler vm.Handler) error {
	if iface.Opcode == "" {
		return lexerr.New(lexerr.KindValidation, component, "opcode name must not be empty")
	}
	if handler == nil {
		return lexerr.New(lexerr.KindValidation, component, "opcode %q: handler must not be nil", iface.Opcode)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[iface.Opcode] = &entry{iface: iface, handler: handler}
	return nil
}

// Inject supplies the host dependency a privileged opcode needs before
// it can be invoked. Injecting into a non-privileged opcode is a no-op
// error: privileged status is declared at registration time, not implied
// by calling Inject.
func (r *Registry) Inject(opcode string, dep any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[opcode]
	if !ok {
		return lexerr.New(lexerr.KindUnknownOpcode, component, "unknown opcode %q", opcode)
	}
	if !e.iface.Privileged {
		return lexerr.New(lexerr.KindValidation, component, "opcode %q is not privileged", opcode)
	}
	e.injected = dep
	e.hasInjected = true
	return nil
}

// ClearInjection removes a previously-injected dependency, returning the
// opcode to its "not yet injected" state.
func (r *Registry) ClearInjection(opcode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[opcode]; ok {
		e.injected = nil
		e.hasInjected = false
	}
}

// Interface returns opcode's declared contract.
func (r *Registry) Interface(opcode string) (Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[opcode]
	if !ok {
		return Interface{}, false
	}
	return e.iface, true
}

// ListOpcodes returns every registered, non-private opcode name, sorted.
func (r *Registry) ListOpcodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		if IsPrivate(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetInterface is ListOpcodes' single-opcode counterpart; it refuses to
// describe a private opcode to keep introspection and listing consistent.
func (r *Registry) GetInterface(opcode string) (Interface, bool) {
	if IsPrivate(opcode) {
		return Interface{}, false
	}
	return r.Interface(opcode)
}

// Invoke dispatches call through opcode's handler, enforcing the
// privileged-injection precondition first.
func (r *Registry) Invoke(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[call.Opcode]
	r.mu.RUnlock()
	if !ok {
		return nil, lexerr.New(lexerr.KindUnknownOpcode, component, "unknown opcode %q", call.Opcode).WithNode(call.NodeID)
	}
	if e.iface.Privileged {
		r.mu.RLock()
		injected := e.hasInjected
		r.mu.RUnlock()
		if !injected {
			return nil, lexerr.New(lexerr.KindPrivilegedNotInject, component,
				"opcode %q is privileged and has no injected dependency", call.Opcode).WithNode(call.NodeID)
		}
	}
	return e.handler(ctx, m, call)
}

// Injected returns the dependency previously supplied to a privileged
// opcode via Inject, for handlers that need to read it at invoke time.
func (r *Registry) Injected(opcode string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[opcode]
	if !ok || !e.hasInjected {
		return nil, false
	}
	return e.injected, true
}
