package dyncb

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-lynx/emuplug/plugins"
)

// RegionID names a region by arena slot and arena generation.
// Ids from before a Reset never resolve again.
type RegionID struct {
	Index uint32
	Gen   uint32
}

func (id RegionID) String() string {
	return fmt.Sprintf("region %d.%d", id.Gen, id.Index)
}

// InsnInfo describes one guest instruction of a region
type InsnInfo struct {
	Vaddr    uint64
	Bytes    []byte
	Mnemonic string
}

// Region is a translated block of guest code together with the callback
// arrays of all its instrumentation points.
type Region struct {
	id    RegionID
	vaddr uint64
	insns []InsnInfo

	exec     Array
	insnExec []Array
	insnMem  []Array

	sealed atomic.Bool
	dead   atomic.Bool
}

func newRegion(id RegionID, vaddr uint64, insns []InsnInfo) *Region {
	return &Region{
		id:       id,
		vaddr:    vaddr,
		insns:    insns,
		insnExec: make([]Array, len(insns)),
		insnMem:  make([]Array, len(insns)),
	}
}

// ID returns the arena id of the region
func (r *Region) ID() RegionID { return r.id }

// Vaddr returns the guest address of the first instruction
func (r *Region) Vaddr() uint64 { return r.vaddr }

// NumInsns returns the instruction count
func (r *Region) NumInsns() int { return len(r.insns) }

// Insn returns the description of instruction i
func (r *Region) Insn(i int) InsnInfo { return r.insns[i] }

// Seal ends translation. Later registrations fail with ErrRegionSealed.
func (r *Region) Seal() { r.sealed.Store(true) }

// Sealed reports whether translation has finished
func (r *Region) Sealed() bool { return r.sealed.Load() }

// Dead reports whether the region was discarded by an arena reset
func (r *Region) Dead() bool { return r.dead.Load() }

// BlockArray returns the array run when the region starts executing
func (r *Region) BlockArray() *Array { return &r.exec }

// InsnArray returns the array run before instruction i executes
func (r *Region) InsnArray(i int) *Array { return &r.insnExec[i] }

// MemArray returns the array run on every memory access of instruction i
func (r *Region) MemArray(i int) *Array { return &r.insnMem[i] }

// Exec runs the block execution point
func (r *Region) Exec(vcpu int, g plugins.Guard) {
	r.live()
	r.exec.Exec(vcpu, g)
}

// ExecInsn runs the execution point of instruction i
func (r *Region) ExecInsn(i, vcpu int, g plugins.Guard) {
	r.live()
	r.insnExec[i].Exec(vcpu, g)
}

// ExecMem runs the memory point of instruction i
func (r *Region) ExecMem(i, vcpu int, info MemInfo, vaddr uint64, g plugins.Guard) {
	r.live()
	r.insnMem[i].ExecMem(vcpu, info, vaddr, g)
}

// Entries returns the total number of entries over all points
func (r *Region) Entries() int {
	n := r.exec.Len()
	for i := range r.insns {
		n += r.insnExec[i].Len() + r.insnMem[i].Len()
	}
	return n
}

func (r *Region) live() {
	if r.dead.Load() {
		panic(fmt.Errorf("%w: %s at %#x", plugins.ErrDanglingRegion, r.id, r.vaddr))
	}
}

// Store is the arena owning every translated region
type Store struct {
	mu    sync.Mutex
	gen   uint32
	slots []*Region
}

// NewStore creates an empty arena
func NewStore() *Store {
	return &Store{}
}

// Alloc creates a region in a fresh slot
func (s *Store) Alloc(vaddr uint64, insns []InsnInfo) *Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := RegionID{Index: uint32(len(s.slots)), Gen: s.gen}
	r := newRegion(id, vaddr, insns)
	s.slots = append(s.slots, r)
	return r
}

// Lookup resolves a region id. Ids from an earlier generation are not found.
func (s *Store) Lookup(id RegionID) (*Region, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id.Gen != s.gen || int(id.Index) >= len(s.slots) {
		return nil, false
	}
	return s.slots[id.Index], true
}

// Reset discards every region with all its arrays and starts a new generation.
// It must only run while no vcpu executes translated code.
func (s *Store) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.slots)
	for _, r := range s.slots {
		r.dead.Store(true)
	}
	s.slots = nil
	s.gen++
	return n
}

// Len returns the number of live regions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Generation returns the current arena generation
func (s *Store) Generation() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}
