package batch

import "sync/atomic"

// runGuard admits one run at a time and never blocks
type runGuard struct {
	held atomic.Bool
}

// enter claims the guard. It returns the release func, or nil when another
// run already holds it.
func (g *runGuard) enter() func() {
	if !g.held.CompareAndSwap(false, true) {
		return nil
	}
	return func() { g.held.Store(false) }
}
