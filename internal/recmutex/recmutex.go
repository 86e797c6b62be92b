// Package recmutex provides a goroutine re-entrant mutex.
//
// The registry lock must be re-acquirable by the goroutine that holds it:
// module code called under the lock (install functions, vcpu iteration) calls
// back into registry operations that take the same lock.
package recmutex

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"
	"github.com/sasha-s/go-deadlock"
)

// the detector is opt-in
func init() {
	deadlock.Opts.Disable = true
}

// Configure toggles the lock-wait detector of the underlying mutex.
// The setting is process-wide: it affects every Mutex and must be made at
// start-up, before any Mutex is in use.
func Configure(detect bool, timeout time.Duration) {
	deadlock.Opts.Disable = !detect
	if timeout > 0 {
		deadlock.Opts.DeadlockTimeout = timeout
	}
}

// Mutex is a re-entrant mutex owned by a goroutine.
// The zero value is unlocked.
type Mutex struct {
	mu    deadlock.Mutex
	owner atomic.Int64
	depth int
}

// Lock acquires the mutex, or deepens the hold if the caller already owns it
func (m *Mutex) Lock() {
	g := goid.Get()
	if m.owner.Load() == g {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(g)
	m.depth = 1
}

// Unlock releases one level of the hold. Panics if the caller is not the owner.
func (m *Mutex) Unlock() {
	g := goid.Get()
	if m.owner.Load() != g {
		panic(fmt.Sprintf("recmutex: unlock by goroutine %d, owner is %d", g, m.owner.Load()))
	}
	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}

// Owned reports whether the calling goroutine holds the mutex
func (m *Mutex) Owned() bool {
	return m.owner.Load() == goid.Get()
}

// Depth returns how many times the calling goroutine acquired the mutex,
// zero if it does not hold it
func (m *Mutex) Depth() int {
	if !m.Owned() {
		return 0
	}
	return m.depth
}
