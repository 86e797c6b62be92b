package emuplug

import (
	"sync"

	"github.com/petermattis/goid"

	"github.com/go-lynx/emuplug/log"
	"github.com/go-lynx/emuplug/plugins"
)

// thread is the registry's view of one goroutine: the contexts whose
// callbacks it is currently running, whether it is inside an execution
// section, and the work postponed to its next safe point.
// Only the goroutine itself touches its thread.
type thread struct {
	gid      int64
	frames   []*plugins.Context
	deferred []*plugins.Context
	exec     int
	vcpu     *VCPU
	safe     []func()
}

func (t *thread) inside(c *plugins.Context) bool {
	for _, f := range t.frames {
		if f == c {
			return true
		}
	}
	return false
}

func (t *thread) idle() bool {
	return len(t.frames) == 0 && len(t.deferred) == 0 && t.exec == 0 && t.vcpu == nil && len(t.safe) == 0
}

// current returns the calling goroutine's thread, creating it if asked to
func (r *Registry) current(create bool) *thread {
	g := goid.Get()
	if v, ok := r.threads.Load(g); ok {
		return v.(*thread)
	}
	if !create {
		return nil
	}
	t := &thread{gid: g}
	r.threads.Store(g, t)
	return t
}

func (r *Registry) release(t *thread) {
	if t.idle() {
		r.threads.Delete(t.gid)
	}
}

// guard brackets every module callback: it refuses contexts that are being
// torn down, tracks the running context on the calling goroutine, and applies
// teardowns the callback requested for its own context once it returns.
type guard struct {
	r *Registry
}

func (g guard) Enter(c *plugins.Context) bool {
	if !c.Enter() {
		return false
	}
	t := g.r.current(true)
	t.frames = append(t.frames, c)
	return true
}

func (g guard) Leave(c *plugins.Context) {
	t := g.r.current(false)
	t.frames = t.frames[:len(t.frames)-1]
	c.Leave()

	if len(t.deferred) > 0 {
		kept := t.deferred[:0]
		var ready []*plugins.Context
		for _, d := range t.deferred {
			if t.inside(d) {
				kept = append(kept, d)
			} else {
				ready = append(ready, d)
			}
		}
		t.deferred = kept
		for _, d := range ready {
			if td := d.TakePending(); td != nil {
				g.r.applyDeferred(d, td)
			}
		}
	}
	g.r.release(t)
}

// deferTeardown records a teardown of c requested from inside one of c's callbacks
func (r *Registry) deferTeardown(t *thread, c *plugins.Context, reset bool, done []func(plugins.ID)) {
	if !c.SetPending(reset, done...) {
		return
	}
	r.stats.deferred.Add(1)
	for _, d := range t.deferred {
		if d == c {
			return
		}
	}
	t.deferred = append(t.deferred, c)
	log.Debugw("msg", "teardown deferred until callback returns", "plugin", c.ID(), "reset", reset)
}

func (r *Registry) applyDeferred(c *plugins.Context, td *plugins.Teardown) {
	if err := r.requestTeardown(c.ID(), td.Reset, td.Done...); err != nil {
		log.Warnw("msg", "deferred teardown dropped", "plugin", c.ID(), "err", err, "waiters", len(td.Done))
	}
}

// atSafePoint runs work that waits for quiescence. Inside an execution
// section it is postponed until the section ends; when the caller holds the
// registry lock or runs a module callback it runs on its own goroutine;
// otherwise it runs before atSafePoint returns.
func (r *Registry) atSafePoint(work func()) {
	r.work.add()
	job := func() {
		defer r.work.done()
		work()
	}
	t := r.current(false)
	if t != nil && t.exec > 0 {
		t.safe = append(t.safe, job)
		return
	}
	r.run(t, job)
}

func (r *Registry) run(t *thread, job func()) {
	if r.mu.Owned() || (t != nil && len(t.frames) > 0) {
		go job()
		return
	}
	job()
}

// drainSafe runs the work postponed to the end of the current execution section
func (r *Registry) drainSafe(t *thread) {
	for len(t.safe) > 0 {
		jobs := t.safe
		t.safe = nil
		for _, job := range jobs {
			r.run(t, job)
		}
	}
}

// jobs counts safe-point work still running. Unlike a sync.WaitGroup it may
// go up from zero while a waiter is blocked.
type jobs struct {
	mu   sync.Mutex
	idle *sync.Cond
	n    int
}

func newJobs() *jobs {
	j := &jobs{}
	j.idle = sync.NewCond(&j.mu)
	return j
}

func (j *jobs) add() {
	j.mu.Lock()
	j.n++
	j.mu.Unlock()
}

func (j *jobs) done() {
	j.mu.Lock()
	j.n--
	if j.n == 0 {
		j.idle.Broadcast()
	}
	j.mu.Unlock()
}

// wait blocks until no job is running
func (j *jobs) wait() {
	j.mu.Lock()
	for j.n > 0 {
		j.idle.Wait()
	}
	j.mu.Unlock()
}
