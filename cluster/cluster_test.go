package cluster

import (
	"testing"
	"time"

	"github.com/vlcore/engine/identity"
)

// testBus queues outbound backplane messages and drains them from the top
// level rather than letting one Cluster's SendFunc call straight into
// another Cluster's HandleIncoming from inside its own phony.Block
// callback — the same cross-actor reentrancy hazard vl1's switch_test.go
// works around, for the same reason.
type testBus struct {
	clusters map[MemberID]*Cluster
	pending  []busMsg
}

type busMsg struct {
	from, to MemberID
	raw      []byte
}

func newTestBus() *testBus { return &testBus{clusters: make(map[MemberID]*Cluster)} }

func (b *testBus) add(id MemberID, secret []byte, locate LocateFunc) *Cluster {
	self := id
	c := New(id, secret, func(dest MemberID, raw []byte) error {
		b.pending = append(b.pending, busMsg{from: self, to: dest, raw: raw})
		return nil
	}, locate)
	b.clusters[id] = c
	return c
}

func (b *testBus) drain(t *testing.T, now time.Time) {
	t.Helper()
	for len(b.pending) > 0 {
		m := b.pending[0]
		b.pending = b.pending[1:]
		dest, ok := b.clusters[m.to]
		if !ok {
			continue
		}
		if err := dest.HandleIncoming(nil, m.from, m.raw, now); err != nil {
			t.Fatalf("HandleIncoming(%d -> %d): %v", m.from, m.to, err)
		}
	}
}

const sharedSecret = "test-cluster-master-secret"

func TestHandoffLowerLoadWins(t *testing.T) {
	bus := newTestBus()
	now := time.Now()
	addr := mustAddress(t)

	a := bus.add(0, []byte(sharedSecret), nil)
	b := bus.add(1, []byte(sharedSecret), nil)
	a.AddMember(nil, 1)
	b.AddMember(nil, 0)

	a.AnnounceOwnership(nil, addr, 10, now) // A claims ownership at load 10
	bus.drain(t, now)
	if !a.IsLocalOwner(addr) {
		t.Fatal("expected A to be the local owner before any competing claim")
	}

	b.AnnounceOwnership(nil, addr, 5, now) // B claims at a lower (better) load
	bus.drain(t, now)

	if a.IsLocalOwner(addr) {
		t.Fatal("expected A to yield ownership to B's lower-load claim")
	}
	owner, ok := a.Owner(addr)
	if !ok || owner != 1 {
		t.Fatalf("expected A to now believe B (1) owns %v, got %d (ok=%v)", addr, owner, ok)
	}
}

func TestHandoffCloserGeoWinsOnLoadTie(t *testing.T) {
	bus := newTestBus()
	now := time.Now()
	addr := mustAddress(t)

	far := func(identity.Address) (int32, int32) { return 1000, 1000 }
	near := func(identity.Address) (int32, int32) { return 1, 1 }

	a := bus.add(0, []byte(sharedSecret), far)
	b := bus.add(1, []byte(sharedSecret), near)
	a.AddMember(nil, 1)
	b.AddMember(nil, 0)

	a.AnnounceOwnership(nil, addr, 10, now)
	bus.drain(t, now)
	b.AnnounceOwnership(nil, addr, 10, now) // same load, but b is geographically closer
	bus.drain(t, now)

	if a.IsLocalOwner(addr) {
		t.Fatal("expected A to yield on a load tie to B's closer geo hint")
	}
}

func TestIncumbentReassertsAgainstLosingWantPeer(t *testing.T) {
	bus := newTestBus()
	now := time.Now()
	addr := mustAddress(t)

	a := bus.add(0, []byte(sharedSecret), nil)
	b := bus.add(1, []byte(sharedSecret), nil)
	a.AddMember(nil, 1)
	b.AddMember(nil, 0)

	a.AnnounceOwnership(nil, addr, 5, now) // A is well-loaded (low number == good)
	bus.drain(t, now)

	// B asks for the peer with a *worse* (higher) load: it should lose.
	claim := ownerClaim{owner: 1, load: 50}
	raw := seal(a.keyFor(1), 1, 1, MsgWantPeer, encodeOwnershipClaim(addr, claim.load, 0, 0))
	if err := a.HandleIncoming(nil, 1, raw, now); err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}

	if !a.IsLocalOwner(addr) {
		t.Fatal("expected A to keep ownership against a higher-load WANT_PEER")
	}
}

func TestReplayWindowRejectsRepeatedCounter(t *testing.T) {
	bus := newTestBus()
	now := time.Now()
	a := bus.add(0, []byte(sharedSecret), nil)
	b := bus.add(1, []byte(sharedSecret), nil)
	a.AddMember(nil, 1)
	b.AddMember(nil, 0)

	raw := seal(b.keyFor(0), 1, 1, MsgHeartbeat, encodeHeartbeat(1, 0, 0))
	if err := a.HandleIncoming(nil, 1, raw, now); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := a.HandleIncoming(nil, 1, raw, now); err != ErrReplayed {
		t.Fatalf("expected ErrReplayed on a repeated counter, got %v", err)
	}
}

func TestHMACRejectsTamperedMessage(t *testing.T) {
	a := New(0, []byte(sharedSecret), nil, nil)
	a.AddMember(nil, 1)

	raw := seal(a.keyFor(1), 1, 1, MsgHeartbeat, encodeHeartbeat(1, 0, 0))
	raw[sealHeaderSize] ^= 0xff // flip a body byte after the header

	if err := a.HandleIncoming(nil, 1, raw, time.Now()); err != ErrBadHMAC {
		t.Fatalf("expected ErrBadHMAC on a tampered message, got %v", err)
	}
}

func TestExpireDeadMembersDropsOwnershipClaims(t *testing.T) {
	bus := newTestBus()
	now := time.Now()
	addr := mustAddress(t)

	a := bus.add(0, []byte(sharedSecret), nil)
	b := bus.add(1, []byte(sharedSecret), nil)
	a.AddMember(nil, 1)
	b.AddMember(nil, 0)

	b.AnnounceOwnership(nil, addr, 1, now)
	bus.drain(t, now)
	if owner, ok := a.Owner(addr); !ok || owner != 1 {
		t.Fatalf("expected A to record B as owner, got %d/%v", owner, ok)
	}

	raw := seal(a.keyFor(1), 1, 2, MsgHeartbeat, encodeHeartbeat(1, 0, 0))
	if err := a.HandleIncoming(nil, 1, raw, now); err != nil {
		t.Fatalf("HandleIncoming heartbeat: %v", err)
	}

	a.ExpireDeadMembers(nil, now.Add(DefaultDeadAfter+time.Second))
	if _, ok := a.Owner(addr); ok {
		t.Fatal("expected B's ownership claim to be dropped once B is declared dead")
	}
}

func TestDeriveSessionKeyIsOrderIndependent(t *testing.T) {
	k1 := DeriveSessionKey([]byte(sharedSecret), 3, 7)
	k2 := DeriveSessionKey([]byte(sharedSecret), 7, 3)
	if k1 != k2 {
		t.Fatal("expected the derived session key to not depend on argument order")
	}
}

func mustAddress(t *testing.T) identity.Address {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return id.Address()
}
