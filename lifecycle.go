package emuplug

import (
	"fmt"

	"github.com/go-lynx/emuplug/events"
	"github.com/go-lynx/emuplug/log"
	"github.com/go-lynx/emuplug/plugins"
)

// Install loads the module named by desc and runs its install function under
// the registry lock. On any failure the partially installed context is
// discarded, the returned error wraps plugins.ErrLoadFailure, and the registry
// is otherwise unaffected.
func (r *Registry) Install(desc plugins.Descriptor) (plugins.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.ids.Next()
	if _, dup := r.byID[id]; dup {
		log.Fatalf("plugin id %s allocated twice: %v", id, plugins.ErrDuplicateID)
	}
	c := plugins.NewContext(id, desc)
	r.byID[id] = c
	r.ctxs = append(r.ctxs, c)

	if err := r.load(c); err != nil {
		r.discardLocked(c)
		r.stats.installFailures.Add(1)
		log.Errorw("msg", "plugin install failed", "plugin", id, "path", desc.Path, "err", err)
		return plugins.InvalidID, err
	}

	c.Transition(plugins.StatusInstalling, plugins.StatusActive)
	r.stats.installs.Add(1)
	log.Infow("msg", "plugin installed", "plugin", id, "path", desc.Path, "args", desc.Args)
	return id, nil
}

// load opens the module, checks its API version and runs its install function
func (r *Registry) load(c *plugins.Context) error {
	id, desc := c.ID(), c.Descriptor()
	fail := func(message string, err error) error {
		return plugins.NewPluginError(id, "install", message, fmt.Errorf("%w: %w", plugins.ErrLoadFailure, err))
	}

	h, err := r.loader.Open(desc.Path)
	if err != nil {
		return fail("open "+desc.Path, err)
	}
	c.SetHandle(h)

	version, err := resolveVersion(h)
	if err != nil {
		return fail("resolve "+plugins.SymbolVersion, err)
	}
	if version < plugins.MinVersion || version > plugins.CurrentVersion {
		return fail(fmt.Sprintf("module built for API version %d, supported [%d,%d]",
			version, plugins.MinVersion, plugins.CurrentVersion), plugins.ErrUnsupportedVersion)
	}

	install, err := resolveInstall(h)
	if err != nil {
		return fail("resolve "+plugins.SymbolInstall, err)
	}

	info := r.info
	if err := safeInstall(install, r, id, &info, desc.Args); err != nil {
		return fail("install function", err)
	}
	return nil
}

// discardLocked drops a context whose install failed
func (r *Registry) discardLocked(c *plugins.Context) {
	r.events.UnregisterAll(c)
	c.SetStatus(plugins.StatusRemoved)
	r.removeLocked(c)
}

func (r *Registry) removeLocked(c *plugins.Context) {
	delete(r.byID, c.ID())
	for i, x := range r.ctxs {
		if x == c {
			r.ctxs = append(r.ctxs[:i], r.ctxs[i+1:]...)
			break
		}
	}
	if h := c.Handle(); h != nil {
		if err := h.Close(); err != nil {
			log.Warnw("msg", "closing plugin handle failed", "plugin", c.ID(), "err", err)
		}
		c.SetHandle(nil)
	}
}

// Uninstall tears a module down. Its subscriptions are dropped at once; the
// code cache is flushed so no translated region references it any more; once
// no goroutine runs one of its callbacks it leaves the registry, its handle is
// closed and done, if not nil, is called with its id.
//
// Called from one of the module's own callbacks, the uninstall is applied
// when that callback returns. A request for a module already being torn down
// joins that teardown: done is called when it completes.
func (r *Registry) Uninstall(id plugins.ID, done func(plugins.ID)) error {
	return r.requestTeardown(id, false, done)
}

// Reset clears every callback of a module as Uninstall does, but the module
// stays installed under the same id and may subscribe again. done, if not
// nil, is called once the reset completed.
func (r *Registry) Reset(id plugins.ID, done func(plugins.ID)) error {
	return r.requestTeardown(id, true, done)
}

func (r *Registry) requestTeardown(id plugins.ID, reset bool, done ...func(plugins.ID)) error {
	op := "uninstall"
	if reset {
		op = "reset"
	}

	r.mu.Lock()
	c, start, err := r.joinTeardownLocked(id, op, reset, done)
	r.mu.Unlock()
	if err != nil || !start {
		return err
	}
	r.atSafePoint(func() { r.finishTeardown(c, reset) })
	return nil
}

// joinTeardownLocked attaches a request to the context's lifecycle. It
// returns start when the caller must schedule a new teardown; otherwise the
// request was merged into one already pending or in progress.
func (r *Registry) joinTeardownLocked(id plugins.ID, op string, reset bool, done []func(plugins.ID)) (*plugins.Context, bool, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, false, plugins.NewPluginError(id, op, "unknown id", plugins.ErrPluginNotFound)
	}
	switch c.Status() {
	case plugins.StatusInstalling:
		return nil, false, plugins.NewPluginError(id, op, "install has not completed", plugins.ErrPluginNotActive)
	case plugins.StatusRemoved:
		return nil, false, plugins.NewPluginError(id, op, "already removed", plugins.ErrPluginNotFound)
	case plugins.StatusUninstalling:
		// an uninstall absorbs every later request
		addDone(c, done)
		return c, false, nil
	case plugins.StatusResetting:
		if reset {
			addDone(c, done)
		} else {
			// an uninstall arriving during a reset runs once the reset completed
			c.SetPending(false, done...)
		}
		return c, false, nil
	}

	if t := r.current(false); t != nil && t.inside(c) {
		r.deferTeardown(t, c, reset, done)
		return c, false, nil
	}

	to := plugins.StatusUninstalling
	if reset {
		to = plugins.StatusResetting
	}
	c.Transition(plugins.StatusActive, to)
	addDone(c, done)
	n := r.events.UnregisterAll(c)
	log.Debugw("msg", "plugin detached", "plugin", id, "op", op, "subscriptions", n)
	return c, true, nil
}

func addDone(c *plugins.Context, done []func(plugins.ID)) {
	for _, fn := range done {
		c.AddDone(fn)
	}
}

// finishTeardown runs once the caller may wait: it discards every region that
// can reference the context, waits for its running callbacks, then completes
// the reset or the removal and calls every done queued on the way
func (r *Registry) finishTeardown(c *plugins.Context, reset bool) {
	r.flush()
	c.WaitIdle()

	r.mu.Lock()
	if reset {
		c.Transition(plugins.StatusResetting, plugins.StatusActive)
		r.stats.resets.Add(1)
	} else {
		c.SetStatus(plugins.StatusRemoved)
		r.removeLocked(c)
		r.stats.uninstalls.Add(1)
	}
	done := c.TakeDone()
	r.mu.Unlock()

	if reset {
		log.Infow("msg", "plugin reset", "plugin", c.ID())
	} else {
		log.Infow("msg", "plugin uninstalled", "plugin", c.ID(), "path", c.Name())
	}
	for _, fn := range done {
		fn(c.ID())
	}
	if reset {
		if td := c.TakePending(); td != nil {
			r.applyDeferred(c, td)
		}
	}
}

// FlushCodeCache discards every translated region. Vcpus are quiesced first;
// when called from inside an execution section the flush happens at the end
// of that section.
func (r *Registry) FlushCodeCache() {
	r.atSafePoint(r.flush)
}

func (r *Registry) flush() {
	r.gate.Exclusive(func() {
		if r.translator != nil {
			r.translator.Discard()
		}
		n := r.regions.Reset()
		r.stats.flushes.Add(1)
		log.Debugw("msg", "code cache flushed", "regions", n)
	})
	r.events.FireSimple(events.Flush, r.guard)
}

// AtExit runs the AtExit subscribers with their user data
func (r *Registry) AtExit() {
	r.events.FireUdata(events.AtExit, r.guard)
}
