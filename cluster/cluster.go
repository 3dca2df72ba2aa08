package cluster

import (
	"time"

	"github.com/Arceliar/phony"

	"github.com/vlcore/engine/identity"
)

// DefaultDeadAfter is spec.md §4.6's "T_clusterDead≈30s": a member whose
// HEARTBEAT hasn't been seen in this long is dropped from consideration.
const DefaultDeadAfter = 30 * time.Second

// LocateFunc reports a geo hint for a peer address, used to break
// load ties during ownership handoff (SPEC_FULL.md §9: "cluster
// locate-hook as value function"). A nil LocateFunc makes every peer
// appear equidistant, so handoff decisions fall back to load alone.
type LocateFunc func(addr identity.Address) (x, y int32)

// SendFunc transmits a sealed backplane message to a specific cluster
// member. The host is responsible for actually moving the bytes (spec.md
// §4.6 leaves transport to the host, same as vl1.Callbacks.WireSend).
type SendFunc func(dest MemberID, raw []byte) error

// RelayFunc is invoked when a RELAY message arrives carrying a payload a
// higher layer (node) must hand off to the locally-owned peer.
type RelayFunc func(addr identity.Address, payload []byte)

// Cluster implements spec.md §4.6's peer-ownership sharding: members
// gossip HEARTBEATs and ownership claims over an HMAC-authenticated
// backplane and hand a peer's ownership to whichever member can serve it
// better.
type Cluster struct {
	phony.Inbox

	local  MemberID
	secret []byte
	locate LocateFunc
	send   SendFunc
	relay  RelayFunc

	deadAfter time.Duration

	members map[MemberID]*Member
	owners  map[identity.Address]ownerClaim
	// locallyOwned tracks addresses this instance itself currently serves,
	// independent of what the gossip layer believes (an instance always
	// trusts its own direct knowledge over a stale claim).
	locallyOwned map[identity.Address]bool

	keys    map[MemberID]*[32]byte
	inbound map[MemberID]*replayWindow
	outCtr  uint64
}

// New constructs a Cluster for local, authenticated against every current
// and future member with the same masterSecret (out of band, pre-shared).
func New(local MemberID, masterSecret []byte, send SendFunc, locate LocateFunc) *Cluster {
	return &Cluster{
		local:        local,
		secret:       append([]byte(nil), masterSecret...),
		send:         send,
		locate:       locate,
		deadAfter:    DefaultDeadAfter,
		members:      make(map[MemberID]*Member),
		owners:       make(map[identity.Address]ownerClaim),
		locallyOwned: make(map[identity.Address]bool),
		keys:         make(map[MemberID]*[32]byte),
		inbound:      make(map[MemberID]*replayWindow),
	}
}

// SetRelayFunc installs the handler for inbound RELAY payloads.
func (c *Cluster) SetRelayFunc(fn RelayFunc) { c.relay = fn }

func (c *Cluster) keyFor(member MemberID) *[32]byte {
	k, ok := c.keys[member]
	if !ok {
		derived := DeriveSessionKey(c.secret, c.local, member)
		k = &derived
		c.keys[member] = k
	}
	return k
}

// AddMember registers a cluster peer, deriving its session key.
func (c *Cluster) AddMember(from phony.Actor, id MemberID) {
	phony.Block(c, func() {
		if _, ok := c.members[id]; ok {
			return
		}
		c.members[id] = &Member{ID: id}
		c.keyFor(id)
	})
}

// RemoveMember forgets a cluster peer and anything it owned.
func (c *Cluster) RemoveMember(from phony.Actor, id MemberID) {
	phony.Block(c, func() {
		delete(c.members, id)
		delete(c.keys, id)
		delete(c.inbound, id)
		for addr, claim := range c.owners {
			if claim.owner == id {
				delete(c.owners, addr)
			}
		}
	})
}

// Heartbeat broadcasts this instance's current load to every known member.
// The load is not stored locally; only heartbeats received from other
// members update the member table.
func (c *Cluster) Heartbeat(from phony.Actor, now time.Time, load uint32) {
	phony.Block(c, func() {
		gx, gy := c.locateLocked(0)
		body := encodeHeartbeat(load, gx, gy)
		c.broadcastLocked(MsgHeartbeat, body)
	})
}

func (c *Cluster) locateLocked(addr identity.Address) (x, y int32) {
	if c.locate == nil {
		return 0, 0
	}
	return c.locate(addr)
}

func (c *Cluster) broadcastLocked(kind MsgKind, body []byte) {
	c.outCtr++
	for id := range c.members {
		raw := seal(c.keyFor(id), c.local, c.outCtr, kind, body)
		if c.send != nil {
			_ = c.send(id, raw)
		}
	}
}

// AnnounceOwnership asserts this instance currently serves addr,
// broadcasting a HAVE_PEER claim with the instance's own load and its geo
// proximity to addr.
func (c *Cluster) AnnounceOwnership(from phony.Actor, addr identity.Address, load uint32, now time.Time) {
	phony.Block(c, func() {
		c.locallyOwned[addr] = true
		gx, gy := c.locateLocked(addr)
		c.owners[addr] = ownerClaim{owner: c.local, load: load, geoX: gx, geoY: gy, at: now.UnixNano()}
		c.broadcastLocked(MsgHavePeer, encodeOwnershipClaim(addr, load, gx, gy))
	})
}

// DisownLocally stops claiming addr as locally owned (the peer
// disconnected or was removed).
func (c *Cluster) DisownLocally(from phony.Actor, addr identity.Address) {
	phony.Block(c, func() { delete(c.locallyOwned, addr) })
}

// IsLocalOwner reports whether this instance currently believes it owns
// addr.
func (c *Cluster) IsLocalOwner(addr identity.Address) bool {
	var owned bool
	phony.Block(c, func() { owned = c.locallyOwned[addr] })
	return owned
}

// Owner returns the cluster member currently believed to own addr.
func (c *Cluster) Owner(addr identity.Address) (MemberID, bool) {
	var id MemberID
	var ok bool
	phony.Block(c, func() {
		claim, found := c.owners[addr]
		id, ok = claim.owner, found
	})
	return id, ok
}

// HandleIncoming authenticates and dispatches a backplane message
// received from the wire (the host's transport has already identified
// which cluster member sent it, so it can pick the right session key).
func (c *Cluster) HandleIncoming(from phony.Actor, sender MemberID, raw []byte, now time.Time) error {
	var outErr error
	phony.Block(c, func() {
		authFrom, counter, kind, body, err := open(c.keyFor(sender), raw)
		if err != nil {
			outErr = err
			return
		}
		if authFrom != sender {
			outErr = ErrBadHMAC
			return
		}
		win, ok := c.inbound[sender]
		if !ok {
			win = &replayWindow{}
			c.inbound[sender] = win
		}
		if !win.Accept(counter) {
			outErr = ErrReplayed
			return
		}
		c.dispatchLocked(sender, kind, body, now)
	})
	return outErr
}

func (c *Cluster) dispatchLocked(sender MemberID, kind MsgKind, body []byte, now time.Time) {
	switch kind {
	case MsgHeartbeat:
		load, gx, gy, err := decodeHeartbeat(body)
		if err != nil {
			return
		}
		m, ok := c.members[sender]
		if !ok {
			m = &Member{ID: sender}
			c.members[sender] = m
		}
		m.Load, m.GeoX, m.GeoY, m.LastHeartbeat = load, gx, gy, now.UnixNano()

	case MsgHavePeer:
		addr, load, gx, gy, err := decodeOwnershipClaim(body)
		if err != nil {
			return
		}
		candidate := ownerClaim{owner: sender, load: load, geoX: gx, geoY: gy, at: now.UnixNano()}
		c.considerHandoffLocked(addr, candidate, now)

	case MsgWantPeer:
		addr, load, gx, gy, err := decodeOwnershipClaim(body)
		if err != nil {
			return
		}
		requester := ownerClaim{owner: sender, load: load, geoX: gx, geoY: gy, at: now.UnixNano()}
		c.considerHandoffLocked(addr, requester, now)

	case MsgRedirect:
		addr, newOwner, err := decodeRedirect(body)
		if err != nil {
			return
		}
		if current, ok := c.owners[addr]; !ok || current.owner == sender {
			c.owners[addr] = ownerClaim{owner: newOwner, at: now.UnixNano()}
		}
		if newOwner != c.local {
			delete(c.locallyOwned, addr)
		}

	case MsgRelay:
		addr, payload, err := decodeRelay(body)
		if err != nil {
			return
		}
		if c.relay != nil {
			c.relay(addr, payload)
		}
	}
}

// considerHandoffLocked compares an incoming claim against the current
// best-known claim (which may be this instance's own) for addr, and
// updates ownership state, possibly yielding if the incoming claim wins
// (spec.md §4.6: "ownership handoff on lower-load or closer-geo winner,
// loser RELAYs").
func (c *Cluster) considerHandoffLocked(addr identity.Address, claim ownerClaim, now time.Time) {
	current, known := c.owners[addr]
	if !known {
		c.owners[addr] = claim
		return
	}
	if claim.owner == current.owner {
		c.owners[addr] = claim
		return
	}
	// Each claim carries its sender's own locate(addr) hint, i.e. that
	// sender's proximity to addr, so the two hints are compared against a
	// common origin; every member then reaches the same verdict.
	if wins(claim, current, 0, 0) {
		wasLocalOwner := current.owner == c.local
		c.owners[addr] = claim
		if wasLocalOwner {
			delete(c.locallyOwned, addr)
		}
		return
	}
	// The incoming claim (HAVE_PEER or WANT_PEER) loses: if we are the
	// winning incumbent, reassert ownership so the loser stops claiming it.
	if current.owner == c.local {
		gx, gy := c.locateLocked(addr)
		c.broadcastLocked(MsgHavePeer, encodeOwnershipClaim(addr, current.load, gx, gy))
	}
}

// Relay forwards payload to whichever member currently owns addr, for use
// when this instance receives traffic for a peer it no longer (or never
// did) own directly.
func (c *Cluster) Relay(from phony.Actor, addr identity.Address, payload []byte) {
	phony.Block(c, func() {
		claim, ok := c.owners[addr]
		if !ok || claim.owner == c.local {
			return
		}
		c.outCtr++
		raw := seal(c.keyFor(claim.owner), c.local, c.outCtr, MsgRelay, encodeRelay(addr, payload))
		if c.send != nil {
			_ = c.send(claim.owner, raw)
		}
	})
}

// ExpireDeadMembers drops members silent for longer than T_clusterDead and
// any ownership claims they held.
func (c *Cluster) ExpireDeadMembers(from phony.Actor, now time.Time) {
	phony.Block(c, func() {
		cutoff := now.Add(-c.deadAfter).UnixNano()
		for id, m := range c.members {
			if m.LastHeartbeat != 0 && m.LastHeartbeat < cutoff {
				delete(c.members, id)
				delete(c.keys, id)
				delete(c.inbound, id)
				for addr, claim := range c.owners {
					if claim.owner == id {
						delete(c.owners, addr)
					}
				}
			}
		}
	})
}

// Status is a snapshot of the cluster's view, for host diagnostics and
// SPEC_FULL.md §6 NEW's `clusterStatus` facade call.
type Status struct {
	Members []Member
	Owners  map[identity.Address]MemberID
}

func (c *Cluster) Status() Status {
	var s Status
	phony.Block(c, func() {
		for _, m := range c.members {
			s.Members = append(s.Members, *m)
		}
		s.Owners = make(map[identity.Address]MemberID, len(c.owners))
		for addr, claim := range c.owners {
			s.Owners[addr] = claim.owner
		}
	})
	return s
}
