package topology

import (
	"testing"
	"time"

	"github.com/vlcore/engine/identity"
	"github.com/vlcore/engine/peer"
)

func mustIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return id
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	local := mustIdentity(t)
	remote := mustIdentity(t)
	top := New(local)

	p1, h1, created1, err := top.GetOrCreate(nil, remote)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !created1 {
		t.Fatal("expected first GetOrCreate to create a new peer")
	}
	p2, h2, created2, err := top.GetOrCreate(nil, remote)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if created2 {
		t.Fatal("expected second GetOrCreate to find the existing peer")
	}
	if p1 != p2 || h1 != h2 {
		t.Fatal("expected the same peer and handle on repeated lookup")
	}
}

func TestHandleFailsAfterRemove(t *testing.T) {
	local := mustIdentity(t)
	remote := mustIdentity(t)
	top := New(local)

	p, h, _, err := top.GetOrCreate(nil, remote)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if top.Resolve(h) != p {
		t.Fatal("expected Resolve to return the live peer")
	}
	top.Remove(nil, remote.Address())
	if top.Resolve(h) != nil {
		t.Fatal("expected Resolve to fail after Remove (generation check)")
	}
}

func TestHandleRecycledSlotDoesNotAlias(t *testing.T) {
	local := mustIdentity(t)
	a := mustIdentity(t)
	b := mustIdentity(t)
	top := New(local)

	_, hA, _, err := top.GetOrCreate(nil, a)
	if err != nil {
		t.Fatal(err)
	}
	top.Remove(nil, a.Address())

	pB, hB, _, err := top.GetOrCreate(nil, b)
	if err != nil {
		t.Fatal(err)
	}
	if hA.index == hB.index && hA.generation == hB.generation {
		t.Fatal("expected the recycled slot to bump its generation")
	}
	if top.Resolve(hA) != nil {
		t.Fatal("stale handle for the removed peer must not resolve to the new occupant")
	}
	if top.Resolve(hB) != pB {
		t.Fatal("expected the new handle to resolve to the new peer")
	}
}

func TestBestRootPrefersMostRecentReceive(t *testing.T) {
	local := mustIdentity(t)
	r1 := mustIdentity(t)
	r2 := mustIdentity(t)
	top := New(local)

	p1, _, _, _ := top.GetOrCreate(nil, r1)
	p2, _, _, _ := top.GetOrCreate(nil, r2)
	p1.SetRole(nil, peer.RoleRoot)
	p2.SetRole(nil, peer.RoleRoot)

	now := time.Now()
	p1.NoteAuthenticatedReceive(nil, now, nil, nil)
	p2.NoteAuthenticatedReceive(nil, now.Add(time.Minute), nil, nil)

	if top.BestRoot() != p2 {
		t.Fatal("expected the root with the more recent receive to win")
	}
}

func TestAllExcludesRemoved(t *testing.T) {
	local := mustIdentity(t)
	a := mustIdentity(t)
	b := mustIdentity(t)
	top := New(local)

	top.GetOrCreate(nil, a)
	top.GetOrCreate(nil, b)
	top.Remove(nil, a.Address())

	all := top.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 peer after removal, got %d", len(all))
	}
	if all[0].Address != b.Address() {
		t.Fatal("expected the remaining peer to be b")
	}
}
