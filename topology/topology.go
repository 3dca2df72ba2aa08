// Package topology is the directory of all known peers, the embedded
// world (signed root list), and relay selection. Per spec.md §9's design
// note, the peer/topology reference cycle is resolved with an arena: a
// flat slice of slots handed out as stable integer Handles (index +
// generation), so a stale reference after a peer is GC'd fails a
// generation check instead of aliasing whatever peer now occupies that
// slot. This generalizes the teacher's `peers.peers map[peerPort]*peer`
// (network/peers.go) from a map-of-live-connections to an arena that must
// also tolerate removal and reuse.
package topology

import (
	"sync"
	"time"

	"github.com/Arceliar/phony"

	"github.com/vlcore/engine/identity"
	"github.com/vlcore/engine/peer"
	"github.com/vlcore/engine/world"
)

// Handle is a stable reference to a peer slot in the topology's arena.
type Handle struct {
	index      int
	generation uint64
}

// Valid reports whether h could plausibly reference a live slot (zero
// value is never valid).
func (h Handle) Valid() bool { return h.generation != 0 }

type slot struct {
	generation uint64
	peer       *peer.Peer // nil if the slot is free
}

// Topology is the peer directory. All mutation goes through its
// phony.Inbox mailbox (spec.md §5's "one lock for Topology"), and per the
// module's lock ordering (SPEC_FULL.md §5 NEW), Topology may Block into a
// Peer's mailbox but never the reverse.
type Topology struct {
	phony.Inbox

	localIdentity *identity.Identity

	mu       sync.RWMutex // guards byAddress/slots for lock-free reads from query paths
	byAddress map[identity.Address]Handle
	slots     []slot
	free      []int

	world *world.World
}

func New(localIdentity *identity.Identity) *Topology {
	return &Topology{
		localIdentity: localIdentity,
		byAddress:     make(map[identity.Address]Handle),
	}
}

// SetWorld installs a verified World (the caller, node, is responsible for
// calling world.Verify first).
func (t *Topology) SetWorld(from phony.Actor, w *world.World) {
	phony.Block(t, func() { t.world = w })
}

// World returns the currently installed world, or nil if none has loaded.
func (t *Topology) World() *world.World {
	var w *world.World
	phony.Block(t, func() { w = t.world })
	return w
}

// GetOrCreate returns the existing peer for addr if known, or allocates a
// shell Peer from remoteIdentity (which must hash to addr) and registers
// it. The second return value is the stable Handle; the third reports
// whether a new Peer was created (callers use this to decide whether a
// WHOIS is still required or whether they already had enough to route).
func (t *Topology) GetOrCreate(from phony.Actor, remoteIdentity *identity.Identity) (p *peer.Peer, h Handle, created bool, err error) {
	addr := remoteIdentity.Address()
	phony.Block(t, func() {
		if existing, ok := t.byAddress[addr]; ok {
			p = t.slots[existing.index].peer
			h = existing
			return
		}
		np, e := peer.New(remoteIdentity, t.localIdentity)
		if e != nil {
			err = e
			return
		}
		h = t.allocateLocked(np)
		t.mu.Lock()
		t.byAddress[addr] = h
		t.mu.Unlock()
		p, created = np, true
	})
	return
}

// Lookup returns the peer for addr, if any, without creating one.
func (t *Topology) Lookup(addr identity.Address) (p *peer.Peer, h Handle, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	handle, found := t.byAddress[addr]
	if !found {
		return nil, Handle{}, false
	}
	return t.slots[handle.index].peer, handle, true
}

// Resolve dereferences a Handle, returning nil if the slot has since been
// recycled (the generation check spec.md §9 calls for).
func (t *Topology) Resolve(h Handle) *peer.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h.index < 0 || h.index >= len(t.slots) {
		return nil
	}
	s := t.slots[h.index]
	if s.generation != h.generation || s.peer == nil {
		return nil
	}
	return s.peer
}

func (t *Topology) allocateLocked(p *peer.Peer) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.free) > 0 {
		idx := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.slots[idx].generation++
		t.slots[idx].peer = p
		return Handle{index: idx, generation: t.slots[idx].generation}
	}
	t.slots = append(t.slots, slot{generation: 1, peer: p})
	return Handle{index: len(t.slots) - 1, generation: 1}
}

// Remove evicts the peer at addr, recycling its slot. Any outstanding
// Handle referencing it will fail Resolve's generation check from then on.
func (t *Topology) Remove(from phony.Actor, addr identity.Address) {
	phony.Block(t, func() {
		h, ok := t.byAddress[addr]
		if !ok {
			return
		}
		t.mu.Lock()
		delete(t.byAddress, addr)
		t.slots[h.index].peer = nil
		t.free = append(t.free, h.index)
		t.mu.Unlock()
	})
}

// All returns a snapshot of every currently known peer.
func (t *Topology) All() []*peer.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*peer.Peer, 0, len(t.byAddress))
	for _, h := range t.byAddress {
		if s := t.slots[h.index]; s.peer != nil {
			out = append(out, s.peer)
		}
	}
	return out
}

// Roots returns every currently known peer whose role is RoleRoot.
func (t *Topology) Roots() []*peer.Peer {
	var out []*peer.Peer
	for _, p := range t.All() {
		if p.Role() == peer.RoleRoot {
			out = append(out, p)
		}
	}
	return out
}

// BestRoot picks the root with the most recent authenticated receive, the
// root used for WHOIS and fallback relaying (spec.md §4.3).
func (t *Topology) BestRoot() *peer.Peer {
	var best *peer.Peer
	for _, r := range t.Roots() {
		if best == nil || r.LastReceive().After(best.LastReceive()) {
			best = r
		}
	}
	return best
}

// BestRelay picks a relay for a destination with no known direct path.
// Roots double as relays of last resort if no dedicated relay exists.
func (t *Topology) BestRelay(now time.Time) *peer.Peer {
	var best *peer.Peer
	for _, p := range t.All() {
		if p.Role() != peer.RoleRelay && p.Role() != peer.RoleRoot {
			continue
		}
		if p.BestPath() == nil {
			continue
		}
		if best == nil || p.LastReceive().After(best.LastReceive()) {
			best = p
		}
	}
	return best
}
