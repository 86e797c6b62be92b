package plugins

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Teardown is a deferred uninstall or reset recorded on a context while the
// requesting goroutine is still executing one of that context's callbacks.
// Requests made before it is applied are merged into it.
type Teardown struct {
	// Reset keeps the context and its id; otherwise it is removed
	Reset bool
	// Done are invoked with the context id once teardown has completed
	Done []func(ID)
}

// with returns a copy of t extended by one more request. An uninstall absorbs a reset.
func (t *Teardown) with(reset bool, done []func(ID)) *Teardown {
	next := &Teardown{Reset: reset}
	if t != nil {
		next.Reset = t.Reset && reset
		next.Done = append(next.Done, t.Done...)
	}
	for _, fn := range done {
		if fn != nil {
			next.Done = append(next.Done, fn)
		}
	}
	return next
}

// Context is the registry's record of one installed module.
// Event and dynamic callback entries reference it but never own it.
type Context struct {
	id     ID
	desc   Descriptor
	handle Handle

	state    atomic.Int32
	inflight atomic.Int64
	pending  atomic.Pointer[Teardown]

	// done callbacks of the teardown in progress
	doneMu sync.Mutex
	done   []func(ID)
}

// NewContext creates a context in StatusInstalling
func NewContext(id ID, desc Descriptor) *Context {
	c := &Context{id: id, desc: desc}
	c.state.Store(int32(StatusInstalling))
	return c
}

// ID returns the context id
func (c *Context) ID() ID { return c.id }

// Descriptor returns the descriptor the module was loaded from
func (c *Context) Descriptor() Descriptor { return c.desc }

// Name returns the module path
func (c *Context) Name() string { return c.desc.Path }

// Handle returns the opened module handle, nil before it was opened
func (c *Context) Handle() Handle { return c.handle }

// SetHandle records the opened module handle
func (c *Context) SetHandle(h Handle) { c.handle = h }

// Status returns the current lifecycle status
func (c *Context) Status() Status {
	return Status(c.state.Load())
}

// SetStatus unconditionally stores a status
func (c *Context) SetStatus(s Status) {
	c.state.Store(int32(s))
}

// Transition moves the context from one status to another.
// It returns false, leaving the context untouched, if the current status is not from.
func (c *Context) Transition(from, to Status) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Enter marks a callback invocation as in flight. It returns false when the
// context is not runnable; the caller must then skip the callback and must not
// call Leave.
//
// The counter is raised before the status is read, and teardown stores the
// status before reading the counter, so once WaitIdle returns no invocation
// can observe the old status.
func (c *Context) Enter() bool {
	c.inflight.Add(1)
	if !c.Status().Runnable() {
		c.inflight.Add(-1)
		return false
	}
	return true
}

// Leave ends an invocation started by a successful Enter
func (c *Context) Leave() {
	c.inflight.Add(-1)
}

// InFlight returns the number of invocations currently running on behalf of the context
func (c *Context) InFlight() int64 {
	return c.inflight.Load()
}

// WaitIdle blocks until no invocation is in flight.
// Callers must have made the context non-runnable first, otherwise it may never return.
func (c *Context) WaitIdle() {
	for spins := 0; c.inflight.Load() != 0; spins++ {
		if spins < 64 {
			runtime.Gosched()
			continue
		}
		time.Sleep(50 * time.Microsecond)
	}
}

// SetPending records a deferred teardown, merging it into the one already
// pending. It returns true when nothing was pending before.
func (c *Context) SetPending(reset bool, done ...func(ID)) bool {
	for {
		old := c.pending.Load()
		if c.pending.CompareAndSwap(old, old.with(reset, done)) {
			return old == nil
		}
	}
}

// TakePending removes and returns the deferred teardown, if any
func (c *Context) TakePending() *Teardown {
	return c.pending.Swap(nil)
}

// HasPending reports whether a teardown is deferred
func (c *Context) HasPending() bool {
	return c.pending.Load() != nil
}

// AddDone queues done to run when the teardown in progress completes
func (c *Context) AddDone(done func(ID)) {
	if done == nil {
		return
	}
	c.doneMu.Lock()
	c.done = append(c.done, done)
	c.doneMu.Unlock()
}

// TakeDone removes and returns the queued done callbacks
func (c *Context) TakeDone() []func(ID) {
	c.doneMu.Lock()
	defer c.doneMu.Unlock()
	out := c.done
	c.done = nil
	return out
}
