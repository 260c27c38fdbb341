// Package gate implements single-occupancy admission for bridge
// clients.
package gate

import "sync/atomic"

// Gate admits at most one client at a time.  The zero value is an
// open gate.
type Gate struct {
	occupied atomic.Bool
}

// TryAdmit marks the gate occupied and returns true if it was free.
// The check and the set are one compare-and-swap, so concurrent
// callers can never both win.
func (g *Gate) TryAdmit() bool {
	return g.occupied.CompareAndSwap(false, true)
}

// Release frees the gate.  It must be called exactly once for every
// successful TryAdmit; it reports false if the gate was not held.
func (g *Gate) Release() bool {
	return g.occupied.CompareAndSwap(true, false)
}

// Occupied reports whether a client currently holds the gate.
func (g *Gate) Occupied() bool {
	return g.occupied.Load()
}
