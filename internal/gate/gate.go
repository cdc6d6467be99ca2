// Package gate implements the process-wide concurrency admission control
// described for the HTTP listener: at most Max connections may be active at
// once, and the (Max+1)th concurrent connection is turned away.
package gate

import (
	"sync/atomic"

	"github.com/wherewego/goproxycore/internal/stats"
)

// Gate admits connections up to a fixed maximum. It is safe for concurrent
// use and is typically shared across every connection accepted by a
// listener.
type Gate struct {
	max    int64
	active atomic.Int64
	obs    stats.Observer
}

// New returns a Gate that admits at most max concurrent connections. A max
// of zero or less disables the limit.
func New(max int, obs stats.Observer) *Gate {
	if obs == nil {
		obs = stats.NopObserver{}
	}
	return &Gate{max: int64(max), obs: obs}
}

// Admit atomically increments the active count and reports whether the
// connection should proceed. When it returns false, the gate has already
// rolled back its own counter and notified the observer of a rejection; the
// caller must still close the connection itself. When it returns true, the
// caller must call Release exactly once when the connection ends.
func (g *Gate) Admit() bool {
	n := g.active.Add(1)
	if g.max > 0 && n > g.max {
		g.active.Add(-1)
		g.obs.Rejected()
		return false
	}
	g.obs.Accepted()
	return true
}

// Release decrements the active count for a connection previously admitted
// by Admit, and notifies the observer that it disconnected.
func (g *Gate) Release() {
	g.active.Add(-1)
	g.obs.Disconnected()
}

// Active returns the current number of admitted, not-yet-released
// connections. Exposed for tests and diagnostics.
func (g *Gate) Active() int64 {
	return g.active.Load()
}
