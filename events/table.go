package events

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-lynx/emuplug/dyncb"
	"github.com/go-lynx/emuplug/plugins"
)

// Entry is one subscription
type Entry struct {
	Ctx   *plugins.Context
	Fn    any
	Udata any
}

// Table holds one subscriber list per event kind.
//
// Lists are immutable slices published through atomic pointers: writers build
// a new slice and swap it in, readers walk whatever snapshot they loaded
// without taking a lock. Each context owns at most one entry per kind, and
// lists are ordered by ascending context id, which is install order.
type Table struct {
	mu    sync.Mutex
	lists [NumKinds]atomic.Pointer[[]Entry]
	mask  atomic.Uint32
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{}
}

// Mask returns the kinds that currently have subscribers
func (t *Table) Mask() Mask {
	return Mask(t.mask.Load())
}

// Len returns the number of subscribers of kind
func (t *Table) Len(kind Kind) int {
	if p := t.lists[kind].Load(); p != nil {
		return len(*p)
	}
	return 0
}

// Snapshot returns the current subscriber list of kind. It must not be modified.
func (t *Table) Snapshot(kind Kind) []Entry {
	if p := t.lists[kind].Load(); p != nil {
		return *p
	}
	return nil
}

// Register subscribes c to kind, replacing the function and user data of an
// existing subscription in place.
func (t *Table) Register(c *plugins.Context, kind Kind, fn any, udata any) error {
	fn, err := Normalize(kind, fn)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.Snapshot(kind)
	next := make([]Entry, len(old), len(old)+1)
	copy(next, old)
	i := sort.Search(len(next), func(i int) bool { return next[i].Ctx.ID() >= c.ID() })
	e := Entry{Ctx: c, Fn: fn, Udata: udata}
	if i < len(next) && next[i].Ctx == c {
		next[i] = e
	} else {
		next = append(next, Entry{})
		copy(next[i+1:], next[i:])
		next[i] = e
	}
	t.publish(kind, next)
	return nil
}

// Unregister drops the subscription of c to kind. It reports whether one existed.
func (t *Table) Unregister(c *plugins.Context, kind Kind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(c, kind)
}

// UnregisterAll drops every subscription of c and returns how many there were
func (t *Table) UnregisterAll(c *plugins.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := Kind(0); k < NumKinds; k++ {
		if t.remove(c, k) {
			n++
		}
	}
	return n
}

func (t *Table) remove(c *plugins.Context, kind Kind) bool {
	old := t.Snapshot(kind)
	for i := range old {
		if old[i].Ctx != c {
			continue
		}
		next := make([]Entry, 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		t.publish(kind, next)
		return true
	}
	return false
}

func (t *Table) publish(kind Kind, list []Entry) {
	bit := uint32(1) << uint(kind)
	if len(list) == 0 {
		t.lists[kind].Store(nil)
		t.mask.And(^bit)
		return
	}
	t.lists[kind].Store(&list)
	t.mask.Or(bit)
}

// each walks the subscribers of kind in order, bracketing each call with g
// and skipping contexts g refuses
func (t *Table) each(kind Kind, g plugins.Guard, fn func(e *Entry)) {
	if !t.Mask().Has(kind) {
		return
	}
	p := t.lists[kind].Load()
	if p == nil {
		return
	}
	for i := range *p {
		e := &(*p)[i]
		if !g.Enter(e.Ctx) {
			continue
		}
		func() {
			defer g.Leave(e.Ctx)
			fn(e)
		}()
	}
}

// FireVCPU dispatches one of the VCPUSimpleFunc kinds
func (t *Table) FireVCPU(kind Kind, vcpu int, g plugins.Guard) {
	t.each(kind, g, func(e *Entry) {
		e.Fn.(VCPUSimpleFunc)(e.Ctx.ID(), vcpu)
	})
}

// FireTBTrans dispatches VCPUTBTrans, attributing registrations made through
// tb to the subscriber being called
func (t *Table) FireTBTrans(tb *dyncb.TB, g plugins.Guard) {
	t.each(VCPUTBTrans, g, func(e *Entry) {
		tb.SetOwner(e.Ctx)
		defer tb.SetOwner(nil)
		e.Fn.(TBTransFunc)(e.Ctx.ID(), tb)
	})
}

// FireSyscall dispatches VCPUSyscall
func (t *Table) FireSyscall(vcpu int, num int64, args [8]uint64, g plugins.Guard) {
	t.each(VCPUSyscall, g, func(e *Entry) {
		e.Fn.(SyscallFunc)(e.Ctx.ID(), vcpu, num, args)
	})
}

// FireSyscallRet dispatches VCPUSyscallRet
func (t *Table) FireSyscallRet(vcpu int, num, ret int64, g plugins.Guard) {
	t.each(VCPUSyscallRet, g, func(e *Entry) {
		e.Fn.(SyscallRetFunc)(e.Ctx.ID(), vcpu, num, ret)
	})
}

// FireSimple dispatches Flush
func (t *Table) FireSimple(kind Kind, g plugins.Guard) {
	t.each(kind, g, func(e *Entry) {
		e.Fn.(SimpleFunc)(e.Ctx.ID())
	})
}

// FireUdata dispatches AtExit, handing each subscriber its own user data
func (t *Table) FireUdata(kind Kind, g plugins.Guard) {
	t.each(kind, g, func(e *Entry) {
		e.Fn.(UdataFunc)(e.Ctx.ID(), e.Udata)
	})
}
