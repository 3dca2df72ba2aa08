// Package peer models a remote node as seen by this node: its identity,
// the X25519-derived shared key, its live paths, and the HELLO/ESTABLISHED
// state machine from spec.md §4.3. Mutation is serialized through a
// phony.Inbox mailbox, following the teacher's actor-per-entity pattern
// (network/peers.go's `peer` type) rather than a raw mutex — this is the
// module's realization of spec.md §5's "one lock per Peer".
package peer

import (
	"net"
	"time"

	"github.com/Arceliar/phony"

	"github.com/vlcore/engine/identity"
	"github.com/vlcore/engine/path"
)

// MaxPaths is the per-peer path cap from spec.md §3/§6.
const MaxPaths = 4

// Role classifies a peer's position in the topology.
type Role byte

const (
	RoleLeaf Role = iota
	RoleRelay
	RoleRoot
)

// State is the per-peer HELLO/ESTABLISHED state machine from spec.md §4.3.
type State byte

const (
	StateUnlearned State = iota
	StateHelloSent
	StateEstablished
)

// Peer is the remote identity + shared secret + path set + bookkeeping for
// one other node. Callers outside the peer package go through the exported
// methods: the mutating ones run on the mailbox, while the read accessors
// (State, Role, Version, LastReceive, BestPath, Paths, DueForHello,
// ShouldProbeHello, QueueLen) read the fields directly.
type Peer struct {
	phony.Inbox

	Address   identity.Address
	identity  *identity.Identity
	sharedKey [32]byte

	state   State
	role    Role
	version [3]int

	paths []*path.Path

	lastReceive  time.Time
	lastHelloAt  time.Time
	helloPending bool

	queue outboundQueue
}

// New creates a peer shell for a freshly observed or WHOIS-resolved remote
// identity. localIdentity must carry a private key (it is always this
// node's own identity).
func New(remote *identity.Identity, localIdentity *identity.Identity) (*Peer, error) {
	shared, err := localIdentity.Agree(remote)
	if err != nil {
		return nil, err
	}
	return &Peer{
		Address:   remote.Address(),
		identity:  remote,
		sharedKey: shared,
		state:     StateUnlearned,
	}, nil
}

// Identity returns the peer's remote identity.
func (p *Peer) Identity() *identity.Identity { return p.identity }

// SharedKey returns the X25519-derived symmetric key for this peer. Safe to
// call without holding the mailbox: it is fixed at construction time and
// never mutated (spec.md §3: "recomputed on identity change", which this
// module treats as "allocate a new Peer", not an in-place mutation).
func (p *Peer) SharedKey() *[32]byte { return &p.sharedKey }

// State, Role, Version report the peer's current snapshot. These are only
// safe to call from within an Act/Block on p, or when the caller otherwise
// knows no concurrent mutation is possible (e.g. in tests).
func (p *Peer) State() State        { return p.state }
func (p *Peer) Role() Role          { return p.role }
func (p *Peer) Version() [3]int     { return p.version }
func (p *Peer) LastReceive() time.Time { return p.lastReceive }

// SetRole updates the peer's topology role (used by topology when wiring
// roots from the World).
func (p *Peer) SetRole(from phony.Actor, role Role) {
	p.Act(from, func() { p.role = role })
}

// SetVersion records the remote node's advertised version triple, usually
// learned from a HELLO.
func (p *Peer) SetVersion(from phony.Actor, v [3]int) {
	p.Act(from, func() { p.version = v })
}

// noteEstablished advances the state machine. Called with the mailbox
// already held.
func (p *Peer) noteEstablished() {
	if p.state < StateEstablished {
		p.state = StateEstablished
	}
}

// NoteHelloSent marks that a HELLO has gone out on at least one path,
// advancing UNLEARNED -> HELLO_SENT.
func (p *Peer) NoteHelloSent(from phony.Actor, now time.Time) {
	phony.Block(p, func() {
		if p.state == StateUnlearned {
			p.state = StateHelloSent
		}
		p.lastHelloAt = now
		p.helloPending = false
	})
}

// NoteAuthenticatedReceive records a successfully authenticated inbound
// packet on the given path, advancing the state machine to ESTABLISHED and
// touching path liveness. remote/local may be nil if the path is already
// known (e.g. relayed traffic with no direct path).
func (p *Peer) NoteAuthenticatedReceive(from phony.Actor, now time.Time, local, remote net.Addr) (result PathResult) {
	phony.Block(p, func() {
		p.lastReceive = now
		p.noteEstablished()
		if remote == nil {
			return
		}
		result = p.touchPathLocked(now, local, remote)
	})
	return
}

// PathResult reports what NoteAuthenticatedReceive / AddCandidatePath did
// to the path set, so callers (vl1) can decide whether to emit
// WithPathNotify-style host events or trigger a rendezvous.
type PathResult struct {
	Path    *path.Path
	Created bool
}

func (p *Peer) touchPathLocked(now time.Time, local, remote net.Addr) PathResult {
	key := remote.String()
	for _, existing := range p.paths {
		if existing.Key() == key {
			existing.Touch(now)
			return PathResult{Path: existing}
		}
	}
	np := &path.Path{Local: local, Remote: remote}
	np.Touch(now)
	if len(p.paths) >= MaxPaths {
		p.evictWorstPathLocked()
	}
	p.paths = append(p.paths, np)
	return PathResult{Path: np, Created: true}
}

// evictWorstPathLocked drops the least-recently-active, non-preferred path
// to make room for a new one, preserving the spec.md §3 invariant
// "preferred ⇒ active" and the §6 cap of 4 paths per peer.
func (p *Peer) evictWorstPathLocked() {
	worst := -1
	for i, pa := range p.paths {
		if pa.Preferred {
			continue
		}
		if worst == -1 || pa.LastReceive.Before(p.paths[worst].LastReceive) {
			worst = i
		}
	}
	if worst == -1 {
		// All paths are preferred (shouldn't normally happen); drop the oldest.
		worst = 0
		for i, pa := range p.paths {
			if pa.LastReceive.Before(p.paths[worst].LastReceive) {
				worst = i
			}
		}
	}
	p.paths = append(p.paths[:worst], p.paths[worst+1:]...)
}

// AddCandidatePath registers a not-yet-confirmed path learned out of band
// (a PUSH_DIRECT_PATHS hint or a RENDEZVOUS candidate endpoint), so the
// switch's HELLO-punch burst has something to aim at. It never marks the
// path active: only an authenticated receive on it does that.
func (p *Peer) AddCandidatePath(from phony.Actor, local, remote net.Addr) {
	p.Act(from, func() {
		key := remote.String()
		for _, existing := range p.paths {
			if existing.Key() == key {
				return
			}
		}
		if len(p.paths) >= MaxPaths {
			p.evictWorstPathLocked()
		}
		p.paths = append(p.paths, &path.Path{Local: local, Remote: remote})
	})
}

// BestPath selects the active path with the lowest observed RTT,
// preferring a Preferred path outright (SPEC_FULL.md §4 NEW's bonding-hint
// stub). Returns nil if no path is currently active.
func (p *Peer) BestPath() *path.Path {
	var best *path.Path
	for _, pa := range p.paths {
		if !pa.Active {
			continue
		}
		if pa.Preferred {
			return pa
		}
		if best == nil || pa.RTT < best.RTT {
			best = pa
		}
	}
	return best
}

// Paths returns a snapshot copy of the current path list.
func (p *Peer) Paths() []*path.Path {
	out := make([]*path.Path, len(p.paths))
	copy(out, p.paths)
	return out
}

// GCPaths drops paths that have been silent for longer than timeout
// (T_pathDead, spec.md §4.3). Returns the number of paths removed.
func (p *Peer) GCPaths(from phony.Actor, now time.Time, timeout time.Duration) (removed int) {
	phony.Block(p, func() {
		kept := p.paths[:0]
		for _, pa := range p.paths {
			if pa.IsDead(now, timeout) {
				removed++
				continue
			}
			kept = append(kept, pa)
		}
		p.paths = kept
	})
	return
}

// DueForHello reports whether an ESTABLISHED peer's refresh timer
// (T_hello, spec.md §4.3) has elapsed.
func (p *Peer) DueForHello(now time.Time, interval time.Duration) bool {
	if p.state != StateEstablished {
		return false
	}
	return now.Sub(p.lastHelloAt) >= interval
}

// ShouldProbeHello reports whether it is time to (re)send a HELLO while
// still working out a path to this peer, regardless of state. Used by the
// switch's relay/rendezvous pipeline to throttle probing instead of
// sending a HELLO burst on every outbound attempt.
func (p *Peer) ShouldProbeHello(now time.Time, interval time.Duration) bool {
	if p.lastHelloAt.IsZero() {
		return true
	}
	return now.Sub(p.lastHelloAt) >= interval
}

// Enqueue queues an outbound verb+payload for later delivery once a path
// becomes available (spec.md §4.3's capacity-32 send queue).
func (p *Peer) Enqueue(from phony.Actor, verb byte, payload []byte, now time.Time) {
	p.Act(from, func() { p.queue.push(verb, payload, now) })
}

// DrainQueue removes and returns all queued outbound packets.
func (p *Peer) DrainQueue(from phony.Actor) (items []QueuedPacket) {
	phony.Block(p, func() { items = p.queue.drain() })
	return
}

// QueueLen reports the number of packets currently queued.
func (p *Peer) QueueLen() int { return p.queue.len() }
