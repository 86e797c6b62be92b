package emuplug

import (
	"github.com/go-lynx/emuplug/events"
	"github.com/go-lynx/emuplug/plugins"
)

// registrant returns the context allowed to change its subscriptions.
// A nil context without error means the request is silently ignored because
// the context is being removed. The lock must be held.
func (r *Registry) registrant(id plugins.ID, op string) (*plugins.Context, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, plugins.NewPluginError(id, op, "unknown id", plugins.ErrPluginNotFound)
	}
	switch c.Status() {
	case plugins.StatusUninstalling, plugins.StatusRemoved:
		return nil, nil
	}
	return c, nil
}

// Subscribe registers cb for kind on behalf of id, replacing any callback id
// already has for that kind. cb must have the callback type of kind; udata is
// only handed back to AtExit callbacks.
func (r *Registry) Subscribe(id plugins.ID, kind events.Kind, cb any, udata any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.registrant(id, "subscribe")
	if c == nil {
		return err
	}
	if err := r.events.Register(c, kind, cb, udata); err != nil {
		return plugins.NewPluginError(id, "subscribe", kind.String(), err)
	}
	return nil
}

// Unsubscribe drops id's callback for kind. It is a no-op when there is none.
func (r *Registry) Unsubscribe(id plugins.ID, kind events.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.registrant(id, "unsubscribe")
	if c == nil {
		return err
	}
	if !kind.Valid() {
		return plugins.NewPluginError(id, "unsubscribe", "unknown event kind", plugins.ErrInvalidArgument)
	}
	r.events.Unregister(c, kind)
	return nil
}

// RegisterVCPUInit subscribes to vcpu start-up
func (r *Registry) RegisterVCPUInit(id plugins.ID, fn events.VCPUSimpleFunc) error {
	return r.Subscribe(id, events.VCPUInit, fn, nil)
}

// RegisterVCPUExit subscribes to vcpu exit
func (r *Registry) RegisterVCPUExit(id plugins.ID, fn events.VCPUSimpleFunc) error {
	return r.Subscribe(id, events.VCPUExit, fn, nil)
}

// RegisterVCPUIdle subscribes to a vcpu going idle
func (r *Registry) RegisterVCPUIdle(id plugins.ID, fn events.VCPUSimpleFunc) error {
	return r.Subscribe(id, events.VCPUIdle, fn, nil)
}

// RegisterVCPUResume subscribes to a vcpu resuming from idle
func (r *Registry) RegisterVCPUResume(id plugins.ID, fn events.VCPUSimpleFunc) error {
	return r.Subscribe(id, events.VCPUResume, fn, nil)
}

// RegisterTBTrans subscribes to block translation. The callback receives a
// handle valid only for the duration of the call, through which it attaches
// per-point callbacks and inline operations.
func (r *Registry) RegisterTBTrans(id plugins.ID, fn events.TBTransFunc) error {
	return r.Subscribe(id, events.VCPUTBTrans, fn, nil)
}

// RegisterSyscall subscribes to syscall entry
func (r *Registry) RegisterSyscall(id plugins.ID, fn events.SyscallFunc) error {
	return r.Subscribe(id, events.VCPUSyscall, fn, nil)
}

// RegisterSyscallRet subscribes to syscall return
func (r *Registry) RegisterSyscallRet(id plugins.ID, fn events.SyscallRetFunc) error {
	return r.Subscribe(id, events.VCPUSyscallRet, fn, nil)
}

// RegisterFlush subscribes to code-cache flushes
func (r *Registry) RegisterFlush(id plugins.ID, fn events.SimpleFunc) error {
	return r.Subscribe(id, events.Flush, fn, nil)
}

// RegisterAtExit subscribes to emulator exit; fn receives udata
func (r *Registry) RegisterAtExit(id plugins.ID, fn events.UdataFunc, udata any) error {
	return r.Subscribe(id, events.AtExit, fn, udata)
}
