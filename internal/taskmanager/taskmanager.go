// Package taskmanager implements cooperative task spawn/await/cancel
// (spec.md §4.7). Every task a control_spawn opcode creates is owned by
// the single Manager attached to the root Runtime — never by the call
// frame that issued the spawn — so a task outlives the workflow call
// that started it (spec.md §4.6).
package taskmanager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/lexflow/internal/lexerr"
)

const component = "taskmanager"

// Func is the work a spawned task runs.
type Func func(ctx context.Context) (any, error)

// Task is one spawned unit of work.
type Task struct {
	ID     string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result any
	err    error
}

// IsDone reports whether the task has finished (successfully, with an
// error, or via cancellation).
func (t *Task) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Result returns the task's outcome. Calling it before IsDone is true
// returns (nil, nil, false).
func (t *Task) Result() (value any, err error, done bool) {
	if !t.IsDone() {
		return nil, nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err, true
}

// Manager owns every spawned Task for one Runtime.
type Manager struct {
	mu           sync.Mutex
	tasks        map[string]*Task
	defaultAwait time.Duration
}

// New returns an empty Manager. defaultAwait is the await timeout
// DefaultAwait reports for callers that don't supply their own (the
// task_await opcode reads it); 0 means no default deadline. Await itself
// applies no deadline beyond its ctx. See common/config's
// Runtime.DefaultTaskAwait.
func New(defaultAwait time.Duration) *Manager {
	return &Manager{tasks: make(map[string]*Task), defaultAwait: defaultAwait}
}

// DefaultAwait returns the configured default await timeout.
func (m *Manager) DefaultAwait() time.Duration { return m.defaultAwait }

// Spawn starts fn in its own goroutine under a context derived from ctx
// (typically the Runtime's root context — see vm.Machine.RootContext)
// and registers it for later Await/Cancel/List lookups.
func (m *Manager) Spawn(ctx context.Context, fn Func) *Task {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task{
		ID:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()

	go func() {
		defer close(t.done)
		result, err := fn(taskCtx)
		t.mu.Lock()
		t.result = result
		t.err = err
		t.mu.Unlock()
	}()

	return t
}

func (m *Manager) get(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t, ok
}

// Await blocks until task id finishes or ctx is cancelled.
func (m *Manager) Await(ctx context.Context, id string) (any, error) {
	t, ok := m.get(id)
	if !ok {
		return nil, lexerr.New(lexerr.KindValidation, component, "unknown task %q", id)
	}
	select {
	case <-t.done:
		value, err, _ := t.Result()
		return value, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests task id's context be cancelled. It does not block for
// the task to observe cancellation.
func (m *Manager) Cancel(id string) error {
	t, ok := m.get(id)
	if !ok {
		return lexerr.New(lexerr.KindValidation, component, "unknown task %q", id)
	}
	t.cancel()
	return nil
}

// IsDone reports task id's completion state.
func (m *Manager) IsDone(id string) (bool, error) {
	t, ok := m.get(id)
	if !ok {
		return false, lexerr.New(lexerr.KindValidation, component, "unknown task %q", id)
	}
	return t.IsDone(), nil
}

// Exception returns task id's error outcome, if it has finished.
func (m *Manager) Exception(id string) (error, error) {
	t, ok := m.get(id)
	if !ok {
		return nil, lexerr.New(lexerr.KindValidation, component, "unknown task %q", id)
	}
	_, err, _ := t.Result()
	return err, nil
}

// List returns every currently-tracked task id.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	return ids
}

// Cleanup cancels every tracked task and awaits its termination before
// clearing the registry. The Engine calls this on every run-teardown
// path (spec.md §4.7) so no goroutine outlives its owning run, and so
// List() keeps reporting a task until its goroutine has actually exited.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}

	m.mu.Lock()
	m.tasks = make(map[string]*Task)
	m.mu.Unlock()
}
