// Package path models a single (local endpoint, remote endpoint) tuple
// and its liveness bookkeeping, per spec.md §3's Path entity.
package path

import (
	"net"
	"time"
)

// Path is one physical route to a peer. A Peer holds up to four of these
// (spec.md §3's "active-path count ≤ 4" invariant is enforced by the peer
// package, not here).
type Path struct {
	Local       net.Addr
	Remote      net.Addr
	LastSend    time.Time
	LastReceive time.Time
	Active      bool
	Preferred   bool
	// RTT is a round-trip estimate for this path, used by Peer.BestPath
	// (SPEC_FULL.md §4 NEW) to break ties among active paths. Nothing in
	// this module measures or sets it, so it stays zero unless a caller
	// fills it in.
	RTT time.Duration
}

// Key identifies a path by its remote endpoint, which is what peers and
// the topology use to deduplicate and look up paths.
func (p *Path) Key() string {
	if p.Remote == nil {
		return ""
	}
	return p.Remote.String()
}

// Touch records a receive on this path, marking it active.
func (p *Path) Touch(now time.Time) {
	p.LastReceive = now
	p.Active = true
}

// TouchSend records a send attempt on this path.
func (p *Path) TouchSend(now time.Time) {
	p.LastSend = now
}

// IsAlive reports whether the path has been heard from within the given
// liveness window (T_pathAlive in spec.md §4.3).
func (p *Path) IsAlive(now time.Time, window time.Duration) bool {
	return p.Active && !p.LastReceive.IsZero() && now.Sub(p.LastReceive) <= window
}

// IsDead reports whether the path should be garbage collected
// (T_pathDead in spec.md §4.3).
func (p *Path) IsDead(now time.Time, timeout time.Duration) bool {
	if p.LastReceive.IsZero() {
		return now.Sub(p.LastSend) > timeout
	}
	return now.Sub(p.LastReceive) > timeout
}
