package runner

import (
	"sync"
	"sync/atomic"
)

// Gate is the admission-control primitive guaranteeing at most one question
// is being processed at a time, regardless of which goroutine triggers
// processing. Two states: idle and acquired. A trigger arriving while the
// gate is held is rejected, not queued.
type Gate struct {
	// mu serializes state transitions together with their onChange
	// callbacks, so observers see acquire/release notifications in the
	// order the transitions happened.
	mu       sync.Mutex
	acquired atomic.Bool

	// onChange, when set, is called with the new state on every actual
	// transition. Redundant Release calls do not fire it.
	onChange func(acquired bool)
}

// NewGate creates an idle Gate. onChange may be nil.
func NewGate(onChange func(acquired bool)) *Gate {
	return &Gate{onChange: onChange}
}

// TryAcquire atomically transitions idle to acquired and returns true, or
// returns false without effect when already acquired. Never blocks on
// processing work, only on a concurrent transition's callback.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.acquired.CompareAndSwap(false, true) {
		return false
	}
	if g.onChange != nil {
		g.onChange(true)
	}
	return true
}

// Release transitions acquired to idle. Safe to call when already idle, so
// cleanup code on every exit path can call it unconditionally without
// tracking whether acquisition happened.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.acquired.CompareAndSwap(true, false) {
		return
	}
	if g.onChange != nil {
		g.onChange(false)
	}
}

// Held reports whether the gate is currently acquired.
func (g *Gate) Held() bool {
	return g.acquired.Load()
}
