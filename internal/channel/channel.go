// Package channel implements the Channel primitive (spec.md §4.5): a
// bounded async value queue with close semantics and FIFO-per-producer
// ordering, used by control_fork branches and channel opcodes to pass
// values between concurrently-running parts of a program. The design
// mirrors the teacher's common/queue.MemoryQueue — a mutex-guarded
// buffer plus a Go channel used purely as a wakeup signal — generalized
// from topic/key/[]byte messages to a single named, typed value queue
// per Channel instance.
package channel

import (
	"context"
	"sync"

	"github.com/lyzr/lexflow/internal/lexerr"
)

const component = "channel"

// Channel is a bounded FIFO queue of values. A capacity of 0 means
// unbounded (Send never blocks on space). Close is idempotent; once
// closed, pending values still drain via Receive, but Send after Close
// fails immediately.
type Channel struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []any
	capacity int
	closed   bool
}

// New returns a Channel with the given capacity (0 = unbounded).
func New(capacity int) *Channel {
	c := &Channel{capacity: capacity}
	c.notEmpty = sync.NewCond(&c.mu)
	c.notFull = sync.NewCond(&c.mu)
	return c
}

// Send enqueues v, blocking while the channel is at capacity. It returns
// an error if ctx is cancelled while waiting, or if the channel is
// closed (either already, or while Send was blocked).
func (c *Channel) Send(ctx context.Context, v any) error {
	done := make(chan struct{})
	defer close(done)
	go c.wakeOnCancel(ctx, done)

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.capacity > 0 && len(c.buf) >= c.capacity && !c.closed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.notFull.Wait()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.closed {
		return lexerr.New(lexerr.KindSendOnClosed, component, "send on closed channel")
	}
	c.buf = append(c.buf, v)
	c.notEmpty.Signal()
	return nil
}

// SendNoWait enqueues v without blocking, failing if the channel is full
// or closed.
func (c *Channel) SendNoWait(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return lexerr.New(lexerr.KindSendOnClosed, component, "send on closed channel")
	}
	if c.capacity > 0 && len(c.buf) >= c.capacity {
		return lexerr.New(lexerr.KindRuntime, component, "channel full")
	}
	c.buf = append(c.buf, v)
	c.notEmpty.Signal()
	return nil
}

// Receive dequeues the oldest value, blocking while the channel is empty
// and open. Once the channel is closed and drained, Receive returns
// ok=false instead of blocking forever.
func (c *Channel) Receive(ctx context.Context) (v any, ok bool, err error) {
	done := make(chan struct{})
	defer close(done)
	go c.wakeOnCancel(ctx, done)

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.buf) == 0 && !c.closed {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		c.notEmpty.Wait()
	}
	if len(c.buf) == 0 {
		return nil, false, nil
	}
	v = c.buf[0]
	c.buf = c.buf[1:]
	c.notFull.Signal()
	return v, true, nil
}

// TryReceive dequeues the oldest value without blocking; ok is false if
// the channel is currently empty.
func (c *Channel) TryReceive() (v any, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return nil, false
	}
	v = c.buf[0]
	c.buf = c.buf[1:]
	c.notFull.Signal()
	return v, true
}

// Close marks the channel closed; further Send calls fail, and Receive
// returns ok=false once the buffer drains. Closing an already-closed
// channel is a no-op.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}

// Len reports the number of values currently buffered.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// IsEmpty reports whether the buffer currently holds no values.
func (c *Channel) IsEmpty() bool { return c.Len() == 0 }

// IsFull reports whether the buffer is at capacity (always false when
// unbounded).
func (c *Channel) IsFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity > 0 && len(c.buf) >= c.capacity
}

// IsClosed reports whether Close has been called.
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// wakeOnCancel broadcasts on both conditions when ctx is cancelled, so a
// blocked Send/Receive waiting on the cond var re-checks ctx.Err() and
// returns instead of waiting for an unrelated signal/close.
func (c *Channel) wakeOnCancel(ctx context.Context, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		c.mu.Lock()
		c.notEmpty.Broadcast()
		c.notFull.Broadcast()
		c.mu.Unlock()
	case <-done:
	}
}
