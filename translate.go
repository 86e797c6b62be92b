package emuplug

import (
	"github.com/go-lynx/emuplug/dyncb"
	"github.com/go-lynx/emuplug/events"
)

// Translate allocates a region for a freshly translated block and lets the
// VCPUTBTrans subscribers instrument it. The region is sealed on return.
//
// Translate must be called from inside an execution section so a concurrent
// code-cache flush cannot discard the region before it is cached.
func (r *Registry) Translate(vaddr uint64, insns []dyncb.InsnInfo) *dyncb.Region {
	region := r.regions.Alloc(vaddr, insns)
	if r.events.Mask().Has(events.VCPUTBTrans) {
		tb := dyncb.NewTB(region, &r.mu)
		r.events.FireTBTrans(tb, r.guard)
	}
	region.Seal()
	return region
}

// LookupRegion returns a live region by id
func (r *Registry) LookupRegion(id dyncb.RegionID) (*dyncb.Region, bool) {
	return r.regions.Lookup(id)
}

// ExecStart opens an execution section: until the matching ExecEnd no
// code-cache flush can run. Sections nest.
func (v *VCPU) ExecStart() {
	t := v.thread
	if t.exec == 0 {
		v.r.gate.Start()
	}
	t.exec++
}

// ExecEnd closes an execution section. Closing the outermost one runs the
// work that was postponed while it was open.
func (v *VCPU) ExecEnd() {
	t := v.thread
	if t.exec == 0 {
		panic("emuplug: ExecEnd without ExecStart")
	}
	t.exec--
	if t.exec > 0 {
		return
	}
	v.r.gate.End()
	v.r.drainSafe(t)
}

// ExecBlock runs the block-entry callbacks and inline ops of region
func (v *VCPU) ExecBlock(region *dyncb.Region) {
	region.Exec(v.index, v.r.guard)
}

// ExecInsn runs the callbacks and inline ops attached before instruction i
func (v *VCPU) ExecInsn(region *dyncb.Region, i int) {
	region.ExecInsn(i, v.index, v.r.guard)
}

// ExecMem runs the memory callbacks and inline ops of instruction i whose
// access class matches info
func (v *VCPU) ExecMem(region *dyncb.Region, i int, info dyncb.MemInfo, vaddr uint64) {
	region.ExecMem(i, v.index, info, vaddr, v.r.guard)
}
