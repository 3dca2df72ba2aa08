package multicast

import (
	"testing"
	"time"

	"github.com/vlcore/engine/identity"
)

func mustAddress(t *testing.T) identity.Address {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return id.Address()
}

func TestSubscribeIsImmediatelyDueForRefresh(t *testing.T) {
	m := New(mustAddress(t))
	g := Group{MAC: [6]byte{1, 2, 3, 4, 5, 6}, ADI: 7}
	m.Subscribe(nil, 100, g)

	due := m.DueForRefresh(time.Now())
	if len(due) != 1 || due[0].NetworkID != 100 || due[0].Group != g {
		t.Fatalf("expected the freshly subscribed group to be due, got %v", due)
	}
}

func TestMarkRefreshedSuppressesUntilIntervalElapses(t *testing.T) {
	m := New(mustAddress(t))
	g := Group{MAC: [6]byte{1}, ADI: 1}
	m.Subscribe(nil, 1, g)

	now := time.Now()
	m.MarkRefreshed(nil, 1, g, now)
	if due := m.DueForRefresh(now.Add(time.Second)); len(due) != 0 {
		t.Fatalf("expected no refresh due right after marking, got %v", due)
	}
	if due := m.DueForRefresh(now.Add(DefaultLikeRefresh + time.Second)); len(due) != 1 {
		t.Fatalf("expected a refresh to become due after T_likeRefresh, got %v", due)
	}
}

func TestFanoutNeverExceedsCap(t *testing.T) {
	m := New(mustAddress(t))
	g := Group{MAC: [6]byte{9}, ADI: 0}
	now := time.Now()
	for i := 0; i < DefaultFanoutCap*3; i++ {
		m.NoteLike(nil, 1, g, mustAddress(t), now.Add(time.Duration(i)*time.Millisecond))
	}
	fanout := m.Fanout(1, g)
	if len(fanout) != DefaultFanoutCap {
		t.Fatalf("expected fanout capped at %d, got %d", DefaultFanoutCap, len(fanout))
	}
}

func TestFanoutBiasedTowardFreshlySeen(t *testing.T) {
	m := New(mustAddress(t))
	g := Group{MAC: [6]byte{9}, ADI: 0}
	stale := mustAddress(t)
	fresh := mustAddress(t)
	now := time.Now()
	m.NoteLike(nil, 1, g, stale, now.Add(-time.Hour))
	m.NoteLike(nil, 1, g, fresh, now)

	fanout := m.Fanout(1, g)
	if len(fanout) != 2 || fanout[0] != fresh {
		t.Fatalf("expected the freshly-seen subscriber first, got %v", fanout)
	}
}

func TestFanoutExcludesSelf(t *testing.T) {
	self := mustAddress(t)
	m := New(self)
	g := Group{MAC: [6]byte{9}, ADI: 0}
	m.NoteLike(nil, 1, g, self, time.Now())

	if fanout := m.Fanout(1, g); len(fanout) != 0 {
		t.Fatalf("expected self to be excluded from its own fanout, got %v", fanout)
	}
}

func TestNeedsGatherBelowThreshold(t *testing.T) {
	m := New(mustAddress(t))
	g := Group{MAC: [6]byte{9}, ADI: 0}
	if !m.NeedsGather(1, g) {
		t.Fatal("expected NeedsGather true with zero known subscribers")
	}
	m.NoteLike(nil, 1, g, mustAddress(t), time.Now())
	if !m.NeedsGather(1, g) {
		t.Fatal("one known subscriber is still well under the fanout-cap threshold")
	}
}

func TestExpireDropsStaleSubscribers(t *testing.T) {
	m := New(mustAddress(t))
	g := Group{MAC: [6]byte{9}, ADI: 0}
	addr := mustAddress(t)
	now := time.Now()
	m.NoteLike(nil, 1, g, addr, now.Add(-DefaultSubscriberTTL-time.Second))

	m.Expire(now)

	if subs := m.KnownSubscribers(1, g); len(subs) != 0 {
		t.Fatalf("expected the stale subscriber to be expired, got %v", subs)
	}
}

func TestARPGroupShardsByTargetIPv4(t *testing.T) {
	a := ARPGroup(0x0a000001)
	b := ARPGroup(0x0a000002)
	if a == b {
		t.Fatal("expected different target IPv4 addresses to map to different ADI-sharded groups")
	}
	if a.MAC != b.MAC {
		t.Fatal("ARP groups must all share the reserved ARP multicast MAC")
	}
}

func TestWireRoundTripLikeGatherFrame(t *testing.T) {
	g := Group{MAC: [6]byte{1, 2, 3, 4, 5, 6}, ADI: 42}

	nwid, gotG, err := DecodeLike(EncodeLike(7, g))
	if err != nil || nwid != 7 || gotG != g {
		t.Fatalf("LIKE round trip failed: %v %d %v", err, nwid, gotG)
	}

	nwid, gotG, limit, err := DecodeGather(EncodeGather(7, g, 16))
	if err != nil || nwid != 7 || gotG != g || limit != 16 {
		t.Fatalf("GATHER round trip failed: %v", err)
	}

	addr := mustAddress(t)
	nwid, gotG, subs, err := DecodeGatherReply(EncodeGatherReply(7, g, []identity.Address{addr}))
	if err != nil || nwid != 7 || gotG != g || len(subs) != 1 || subs[0] != addr {
		t.Fatalf("GATHER reply round trip failed: %v", err)
	}

	nwid, gotG, frame, err := DecodeFrame(EncodeFrame(7, g, []byte("ethernet-frame")))
	if err != nil || nwid != 7 || gotG != g || string(frame) != "ethernet-frame" {
		t.Fatalf("FRAME round trip failed: %v", err)
	}
}
