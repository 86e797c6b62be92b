// Package exclusive provides the quiesce barrier used to discard translated code.
//
// Vcpu goroutines bracket every stretch of translated-code execution with
// Start and End. Exclusive waits until no such section is running, keeps new
// ones from starting, and runs a function while the world is stopped.
package exclusive

import (
	"sync"
)

// Gate coordinates execution sections with exclusive work
type Gate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	running int
	pending int
	active  bool
	count   uint64
}

// New creates an open gate
func New() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Start enters an execution section, waiting for pending exclusive work first
func (g *Gate) Start() {
	g.mu.Lock()
	for g.active || g.pending > 0 {
		g.cond.Wait()
	}
	g.running++
	g.mu.Unlock()
}

// End leaves an execution section
func (g *Gate) End() {
	g.mu.Lock()
	g.running--
	if g.running < 0 {
		g.mu.Unlock()
		panic("exclusive: End without Start")
	}
	if g.running == 0 {
		g.cond.Broadcast()
	}
	g.mu.Unlock()
}

// Exclusive runs fn once no execution section is running. Sections that try
// to start meanwhile wait until fn returns. The caller must not be inside a
// section itself.
func (g *Gate) Exclusive(fn func()) {
	g.mu.Lock()
	g.pending++
	for g.active || g.running > 0 {
		g.cond.Wait()
	}
	g.pending--
	g.active = true
	g.count++
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.active = false
		g.cond.Broadcast()
		g.mu.Unlock()
	}()
	fn()
}

// Running returns the number of open execution sections
func (g *Gate) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Count returns how many exclusive sections ran
func (g *Gate) Count() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}
