package dyncb

import (
	"fmt"
	"sync"

	"github.com/go-lynx/emuplug/plugins"
)

// TB is the translation handle passed to translation callbacks. Entries
// registered through it, or through its instruction handles, are owned by the
// context whose callback is currently running.
type TB struct {
	region *Region
	owner  *plugins.Context
	locker sync.Locker
	insns  []*Insn
}

// NewTB wraps a region under translation. locker, if not nil, is held around
// every append.
func NewTB(region *Region, locker sync.Locker) *TB {
	tb := &TB{region: region, locker: locker}
	tb.insns = make([]*Insn, region.NumInsns())
	for i := range tb.insns {
		tb.insns[i] = &Insn{tb: tb, index: i}
	}
	return tb
}

// SetOwner records the context registrations are attributed to
func (tb *TB) SetOwner(c *plugins.Context) { tb.owner = c }

// Owner returns the context registrations are attributed to
func (tb *TB) Owner() *plugins.Context { return tb.owner }

// Region returns the region under translation
func (tb *TB) Region() *Region { return tb.region }

// Vaddr returns the guest address of the block
func (tb *TB) Vaddr() uint64 { return tb.region.Vaddr() }

// NumInsns returns the instruction count of the block
func (tb *TB) NumInsns() int { return len(tb.insns) }

// Insn returns the handle of instruction i
func (tb *TB) Insn(i int) *Insn { return tb.insns[i] }

// RegisterExecCallback runs fn every time the block starts executing
func (tb *TB) RegisterExecCallback(fn UdataFunc, flags Flags, udata any) error {
	return tb.append("register exec callback", func(c *plugins.Context) {
		tb.region.exec.AddCallback(c, fn, flags, udata)
	})
}

// RegisterCondExecCallback runs fn when the block starts executing and cond
// holds between the value at loc for the executing vcpu and imm
func (tb *TB) RegisterCondExecCallback(fn UdataFunc, flags Flags, cond Cond, loc Location, imm uint64, udata any) error {
	return tb.append("register conditional exec callback", func(c *plugins.Context) {
		tb.region.exec.AddCondCallback(c, fn, flags, cond, loc, imm, udata)
	})
}

// RegisterInline runs op on loc every time the block starts executing
func (tb *TB) RegisterInline(op Op, loc Location, imm uint64) error {
	return tb.append("register inline op", func(c *plugins.Context) {
		tb.region.exec.AddInline(c, InlineOp{Op: op, Target: loc, Imm: imm})
	})
}

func (tb *TB) append(operation string, add func(c *plugins.Context)) error {
	if tb.locker != nil {
		tb.locker.Lock()
		defer tb.locker.Unlock()
	}
	c := tb.owner
	if c == nil {
		return plugins.NewPluginError(plugins.InvalidID, operation, "no translation callback is running", plugins.ErrInvalidArgument)
	}
	if tb.region.Sealed() {
		return plugins.NewPluginError(c.ID(), operation, tb.region.ID().String(), plugins.ErrRegionSealed)
	}
	if !c.Status().Runnable() {
		return nil
	}
	add(c)
	return nil
}

// Insn is the translation handle of one instruction
type Insn struct {
	tb    *TB
	index int
}

// Index returns the position of the instruction in its block
func (in *Insn) Index() int { return in.index }

// Vaddr returns the guest address of the instruction
func (in *Insn) Vaddr() uint64 { return in.tb.region.insns[in.index].Vaddr }

// Bytes returns the encoded instruction
func (in *Insn) Bytes() []byte { return in.tb.region.insns[in.index].Bytes }

// Size returns the encoded length of the instruction
func (in *Insn) Size() int { return len(in.Bytes()) }

// Disas returns the mnemonic of the instruction
func (in *Insn) Disas() string { return in.tb.region.insns[in.index].Mnemonic }

func (in *Insn) String() string {
	return fmt.Sprintf("%#x: %s", in.Vaddr(), in.Disas())
}

// RegisterExecCallback runs fn before the instruction executes
func (in *Insn) RegisterExecCallback(fn UdataFunc, flags Flags, udata any) error {
	return in.tb.append("register insn exec callback", func(c *plugins.Context) {
		in.tb.region.insnExec[in.index].AddCallback(c, fn, flags, udata)
	})
}

// RegisterCondExecCallback runs fn before the instruction executes when cond holds
func (in *Insn) RegisterCondExecCallback(fn UdataFunc, flags Flags, cond Cond, loc Location, imm uint64, udata any) error {
	return in.tb.append("register insn conditional exec callback", func(c *plugins.Context) {
		in.tb.region.insnExec[in.index].AddCondCallback(c, fn, flags, cond, loc, imm, udata)
	})
}

// RegisterInline runs op on loc before the instruction executes
func (in *Insn) RegisterInline(op Op, loc Location, imm uint64) error {
	return in.tb.append("register insn inline op", func(c *plugins.Context) {
		in.tb.region.insnExec[in.index].AddInline(c, InlineOp{Op: op, Target: loc, Imm: imm})
	})
}

// RegisterMemCallback runs fn on every memory access of the instruction matching rw
func (in *Insn) RegisterMemCallback(fn MemFunc, flags Flags, rw RW, udata any) error {
	return in.tb.append("register mem callback", func(c *plugins.Context) {
		in.tb.region.insnMem[in.index].AddMemCallback(c, fn, flags, rw, udata)
	})
}

// RegisterMemInline runs op on loc on every memory access of the instruction matching rw
func (in *Insn) RegisterMemInline(rw RW, op Op, loc Location, imm uint64) error {
	return in.tb.append("register mem inline op", func(c *plugins.Context) {
		in.tb.region.insnMem[in.index].AddInline(c, InlineOp{RW: rw, Op: op, Target: loc, Imm: imm})
	})
}
