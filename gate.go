package compute

import (
	"sync"
)

// Gate is a cooperative block/wake primitive with a toggleable blocking
// configuration.
//
// While the gate is signaling, Wait blocks. Waiters are released either by
// Signal, which wakes everyone currently waiting without changing the
// configuration, or by SetSignaling(false), which opens the gate and wakes
// everyone at once.
//
// All methods take the same mutex, so reads and writes of the configuration
// are never torn.
type Gate struct {
	mu        sync.Mutex
	cond      sync.Cond
	signaling bool

	// gen is bumped on every wake-up so a waiter can tell a real release
	// from a spurious return of cond.Wait.
	gen uint64
}

// NewGate returns a gate in the given configuration.
func NewGate(signaling bool) *Gate {
	g := &Gate{signaling: signaling}
	g.cond.L = &g.mu
	return g
}

// Wait blocks while the gate is signaling at call time.
//
// It returns immediately when the gate is open, and otherwise returns after
// the next Signal or SetSignaling(false).
func (g *Gate) Wait() {
	g.mu.Lock()
	defer g.mu.Unlock()

	gen := g.gen
	for g.signaling && gen == g.gen {
		g.cond.Wait()
	}
}

// WaitUntil blocks while the gate is signaling and done returns false.
//
// done is evaluated under the gate lock, each time the waiter is woken. A
// caller that changes the state done observes and then calls Signal can
// therefore never be missed.
func (g *Gate) WaitUntil(done func() bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for g.signaling && !done() {
		g.cond.Wait()
	}
}

// Signal wakes all current waiters without changing the configuration.
func (g *Gate) Signal() {
	g.mu.Lock()
	g.gen++
	g.mu.Unlock()
	g.cond.Broadcast()
}

// Signaling reports whether Wait currently blocks.
func (g *Gate) Signaling() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.signaling
}

// SetSignaling switches the configuration. Opening the gate wakes all
// waiters.
func (g *Gate) SetSignaling(v bool) {
	g.mu.Lock()
	was := g.signaling
	g.signaling = v
	if was && !v {
		g.gen++
	}
	g.mu.Unlock()

	if was && !v {
		g.cond.Broadcast()
	}
}
