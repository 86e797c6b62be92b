package dyncb

import (
	"fmt"
	"sync/atomic"
)

// Location resolves the 64-bit word an inline operation or a condition
// refers to on a given vcpu. scoreboard.Entry implements it.
type Location interface {
	Addr(vcpu int) *uint64
}

type fixed struct{ p *uint64 }

func (f fixed) Addr(int) *uint64 { return f.p }

// At returns a Location naming the same word on every vcpu.
// Concurrent vcpus then share the word, so only atomic ops keep it consistent.
func At(p *uint64) Location {
	return fixed{p: p}
}

// InlineOp is an operation executed directly by translated code, without
// calling into the module that registered it.
type InlineOp struct {
	// RW filters memory inline ops; it is ignored at execution points
	RW     RW
	Op     Op
	Target Location
	Imm    uint64
}

// Kind returns the array entry kind the op is stored as
func (op InlineOp) Kind() EntryKind {
	switch op.Op {
	case AddU64:
		return KindInlineAddU64
	case StoreU64:
		return KindInlineStoreU64
	default:
		panic(fmt.Sprintf("dyncb: unknown inline op %s", op.Op))
	}
}

// Exec runs the op for vcpu
func (op InlineOp) Exec(vcpu int) {
	ExecInline(op.Kind(), op, vcpu)
}

// ExecInline runs an inline entry of the given kind for vcpu.
// The target word belongs to the executing vcpu, so the atomics never contend
// unless the target is a fixed location shared by all vcpus.
func ExecInline(kind EntryKind, op InlineOp, vcpu int) {
	p := op.Target.Addr(vcpu)
	switch kind {
	case KindInlineAddU64:
		atomic.AddUint64(p, op.Imm)
	case KindInlineStoreU64:
		atomic.StoreUint64(p, op.Imm)
	default:
		panic(fmt.Sprintf("dyncb: entry kind %d is not an inline op", kind))
	}
}
