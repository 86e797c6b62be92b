package dyncb

import (
	"sync/atomic"

	"github.com/go-lynx/emuplug/plugins"
)

// Entry is one element of a dynamic callback array
type Entry struct {
	Kind  EntryKind
	Ctx   *plugins.Context
	Flags Flags
	Udata any

	// KindRegular, KindCond
	Fn UdataFunc
	// KindCond
	Cond    Cond
	CondLoc Location
	CondImm uint64

	// KindMem
	MemFn MemFunc
	// KindMem and inline entries attached to memory points
	RW RW

	// inline kinds
	Inline InlineOp
}

// Array is the ordered list of entries attached to one instrumentation point.
// It is appended to only while its region is being translated.
type Array struct {
	entries []Entry
}

// Len returns the number of entries
func (a *Array) Len() int { return len(a.entries) }

// Entries returns a copy of the entries
func (a *Array) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// AddCallback appends a regular callback
func (a *Array) AddCallback(ctx *plugins.Context, fn UdataFunc, flags Flags, udata any) {
	a.entries = append(a.entries, Entry{
		Kind:  KindRegular,
		Ctx:   ctx,
		Fn:    fn,
		Flags: flags,
		Udata: udata,
	})
}

// AddCondCallback appends a callback that runs only when cond holds between
// the live value at loc and imm. Never adds nothing, Always adds a regular callback.
func (a *Array) AddCondCallback(ctx *plugins.Context, fn UdataFunc, flags Flags, cond Cond, loc Location, imm uint64, udata any) {
	switch cond {
	case Never:
		return
	case Always:
		a.AddCallback(ctx, fn, flags, udata)
		return
	}
	a.entries = append(a.entries, Entry{
		Kind:    KindCond,
		Ctx:     ctx,
		Fn:      fn,
		Flags:   flags,
		Udata:   udata,
		Cond:    cond,
		CondLoc: loc,
		CondImm: imm,
	})
}

// AddMemCallback appends a memory callback filtered by access class
func (a *Array) AddMemCallback(ctx *plugins.Context, fn MemFunc, flags Flags, rw RW, udata any) {
	a.entries = append(a.entries, Entry{
		Kind:  KindMem,
		Ctx:   ctx,
		MemFn: fn,
		Flags: flags,
		RW:    rw,
		Udata: udata,
	})
}

// AddInline appends an inline op
func (a *Array) AddInline(ctx *plugins.Context, op InlineOp) {
	a.entries = append(a.entries, Entry{
		Kind:   op.Kind(),
		Ctx:    ctx,
		RW:     op.RW,
		Inline: op,
	})
}

// Exec runs the entries of an execution point in order. Module callbacks are
// bracketed by g; inline ops run unconditionally.
func (a *Array) Exec(vcpu int, g plugins.Guard) {
	for i := range a.entries {
		e := &a.entries[i]
		switch e.Kind {
		case KindRegular:
			call(g, e, vcpu)
		case KindCond:
			if e.Cond.Eval(atomic.LoadUint64(e.CondLoc.Addr(vcpu)), e.CondImm) {
				call(g, e, vcpu)
			}
		case KindInlineAddU64, KindInlineStoreU64:
			ExecInline(e.Kind, e.Inline, vcpu)
		default:
			panic("dyncb: memory entry attached to an execution point")
		}
	}
}

// ExecMem runs the entries of a memory point whose access class filter matches info
func (a *Array) ExecMem(vcpu int, info MemInfo, vaddr uint64, g plugins.Guard) {
	access := info.RW()
	for i := range a.entries {
		e := &a.entries[i]
		if !e.RW.Matches(access) {
			continue
		}
		switch e.Kind {
		case KindMem:
			if g.Enter(e.Ctx) {
				func() {
					defer g.Leave(e.Ctx)
					e.MemFn(vcpu, info, vaddr, e.Udata)
				}()
			}
		case KindInlineAddU64, KindInlineStoreU64:
			ExecInline(e.Kind, e.Inline, vcpu)
		default:
			panic("dyncb: execution entry attached to a memory point")
		}
	}
}

func call(g plugins.Guard, e *Entry, vcpu int) {
	if !g.Enter(e.Ctx) {
		return
	}
	defer g.Leave(e.Ctx)
	e.Fn(vcpu, e.Udata)
}
