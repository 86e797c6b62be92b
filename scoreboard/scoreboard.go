// Package scoreboard implements per-vcpu counter storage for instrumentation modules.
//
// A Scoreboard holds one fixed-size element per vcpu. Every element is a separate
// allocation, so growing the scoreboard when new vcpus start never moves memory a
// running vcpu may be writing to. Each vcpu only writes its own element, which keeps
// all accesses uncontended.
package scoreboard

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrOffset indicates an entry offset that is misaligned or outside the element
var ErrOffset = errors.New("scoreboard: invalid entry offset")

const wordSize = 8

// Scoreboard is an array of per-vcpu elements
type Scoreboard struct {
	elemWords int

	// grow is serialized, readers only load the pointer
	mu    sync.Mutex
	slots atomic.Pointer[[][]uint64]
}

// New creates a scoreboard with elements of elemSize bytes (rounded up to a whole
// number of 64-bit words, at least one) and room for n vcpus.
func New(elemSize, n int) *Scoreboard {
	if elemSize < wordSize {
		elemSize = wordSize
	}
	s := &Scoreboard{elemWords: (elemSize + wordSize - 1) / wordSize}
	empty := make([][]uint64, 0)
	s.slots.Store(&empty)
	s.Grow(n)
	return s
}

// ElementSize returns the size of one element in bytes
func (s *Scoreboard) ElementSize() int {
	return s.elemWords * wordSize
}

// Len returns the number of vcpu elements
func (s *Scoreboard) Len() int {
	return len(*s.slots.Load())
}

// Find returns the element of a vcpu. The returned slice stays valid for the
// lifetime of the scoreboard. Panics if vcpu is out of range.
func (s *Scoreboard) Find(vcpu int) []uint64 {
	slots := *s.slots.Load()
	if vcpu < 0 || vcpu >= len(slots) {
		panic(fmt.Sprintf("scoreboard: vcpu %d out of range [0,%d)", vcpu, len(slots)))
	}
	return slots[vcpu]
}

// Grow makes room for at least n vcpus. Existing elements keep their address.
func (s *Scoreboard) Grow(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := *s.slots.Load()
	if n <= len(old) {
		return
	}
	next := make([][]uint64, n)
	copy(next, old)
	for i := len(old); i < n; i++ {
		next[i] = make([]uint64, s.elemWords)
	}
	s.slots.Store(&next)
}

// U64 names the 64-bit word at byte offset inside every element
func (s *Scoreboard) U64(offset int) (Entry, error) {
	if offset < 0 || offset%wordSize != 0 || offset+wordSize > s.ElementSize() {
		return Entry{}, fmt.Errorf("%w: %d (element size %d)", ErrOffset, offset, s.ElementSize())
	}
	return Entry{sb: s, word: offset / wordSize}, nil
}

// MustU64 is like U64 but panics on error
func (s *Scoreboard) MustU64(offset int) Entry {
	e, err := s.U64(offset)
	if err != nil {
		panic(err)
	}
	return e
}

// Entry is a 64-bit counter at a fixed offset of every element of a scoreboard
type Entry struct {
	sb   *Scoreboard
	word int
}

// Scoreboard returns the scoreboard the entry belongs to
func (e Entry) Scoreboard() *Scoreboard { return e.sb }

// Offset returns the entry's byte offset inside an element
func (e Entry) Offset() int { return e.word * wordSize }

// Addr returns the address of the counter for a vcpu
func (e Entry) Addr(vcpu int) *uint64 {
	return &e.sb.Find(vcpu)[e.word]
}

// Get reads the counter of a vcpu
func (e Entry) Get(vcpu int) uint64 {
	return atomic.LoadUint64(e.Addr(vcpu))
}

// Set writes the counter of a vcpu
func (e Entry) Set(vcpu int, v uint64) {
	atomic.StoreUint64(e.Addr(vcpu), v)
}

// Add adds delta to the counter of a vcpu
func (e Entry) Add(vcpu int, delta uint64) {
	atomic.AddUint64(e.Addr(vcpu), delta)
}

// Sum adds the counters of all vcpus
func (e Entry) Sum() uint64 {
	var total uint64
	for _, slot := range *e.sb.slots.Load() {
		total += atomic.LoadUint64(&slot[e.word])
	}
	return total
}
