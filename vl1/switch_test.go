package vl1

import (
	"net"
	"testing"
	"time"

	"github.com/Arceliar/phony"

	"github.com/vlcore/engine/identity"
	"github.com/vlcore/engine/peer"
	"github.com/vlcore/engine/proto"
	"github.com/vlcore/engine/topology"
)

// testNet is a deterministic in-process loopback "network". Unlike a real
// socket, a direct call from one Switch's WireSend straight into another
// Switch's OnWirePacket would run nested inside the sender's own
// phony.Block callback; a reply sent synchronously from there would try to
// Block back into the sender while its mailbox is still busy with the
// call that started the chain, deadlocking. Queuing each wire write and
// draining it from the top level (as a real socket-reading goroutine
// would, decoupled from the sender's call stack) avoids that entirely.
type testNet struct {
	byAddr  map[string]*testNode
	pending []wireMsg
	drop    func(raw []byte) bool
}

type wireMsg struct {
	from, to   *testNode
	local, remote net.Addr
	raw        []byte
}

func newTestNet() *testNet { return &testNet{byAddr: make(map[string]*testNode)} }

func (n *testNet) drain() {
	for len(n.pending) > 0 {
		m := n.pending[0]
		n.pending = n.pending[1:]
		if n.drop != nil && n.drop(m.raw) {
			continue
		}
		m.to.sw.OnWirePacket(nil, m.to.addr, m.local, m.raw)
	}
}

type testNode struct {
	identity *identity.Identity
	top      *topology.Topology
	sw       *Switch
	addr     *net.UDPAddr
}

func (n *testNet) addNode(t *testing.T, port int) *testNode {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	tn := &testNode{
		identity: id,
		top:      topology.New(id),
		addr:     &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
	}
	tn.sw = New(id, tn.top, Callbacks{WireSend: func(local, remote net.Addr, raw []byte) error {
		dest, ok := n.byAddr[remote.String()]
		if !ok {
			return nil
		}
		n.pending = append(n.pending, wireMsg{to: dest, local: local, remote: remote, raw: raw})
		return nil
	}})
	n.byAddr[tn.addr.String()] = tn
	return tn
}

// link registers a and b as known peers of each other with an already
// confirmed path, short-circuiting the HELLO handshake for tests that
// only care about what happens after ESTABLISHED.
func link(t *testing.T, a, b *testNode) (aSeesB, bSeesA *peer.Peer) {
	t.Helper()
	now := time.Now()
	aSeesB, _, _, err := a.top.GetOrCreate(nil, b.identity)
	if err != nil {
		t.Fatal(err)
	}
	aSeesB.AddCandidatePath(nil, a.addr, b.addr)
	aSeesB.NoteAuthenticatedReceive(nil, now, a.addr, b.addr)

	bSeesA, _, _, err = b.top.GetOrCreate(nil, a.identity)
	if err != nil {
		t.Fatal(err)
	}
	bSeesA.AddCandidatePath(nil, b.addr, a.addr)
	bSeesA.NoteAuthenticatedReceive(nil, now, b.addr, a.addr)
	return
}

func TestTwoNodeHelloEstablishesPath(t *testing.T) {
	n := newTestNet()
	a := n.addNode(t, 10001)
	b := n.addNode(t, 10002)

	aSeesB, _, _, err := a.top.GetOrCreate(nil, b.identity)
	if err != nil {
		t.Fatal(err)
	}
	aSeesB.AddCandidatePath(nil, a.addr, b.addr)

	a.sw.sendHello(aSeesB, a.addr, b.addr)
	n.drain()

	bSeesA, _, ok := b.top.Lookup(a.identity.Address())
	if !ok {
		t.Fatal("expected b to learn a's identity from the HELLO")
	}
	if bSeesA.LastReceive().IsZero() {
		t.Fatal("expected b to record a receive from a")
	}
	if aSeesB.BestPath() == nil {
		t.Fatal("expected a's path to b to be confirmed by the OK(HELLO) reply")
	}
}

func TestEchoRoundTrip(t *testing.T) {
	n := newTestNet()
	a := n.addNode(t, 10011)
	b := n.addNode(t, 10012)
	link(t, a, b)

	a.sw.Send(nil, b.identity.Address(), VerbEcho, []byte("ping"))
	n.drain()

	bSeesA, _, ok := b.top.Lookup(a.identity.Address())
	if !ok {
		t.Fatal("expected b to know a")
	}
	if bSeesA.LastReceive().IsZero() {
		t.Fatal("expected b to have processed the ECHO")
	}
}

func TestFragmentedFrameReassembles(t *testing.T) {
	n := newTestNet()
	a := n.addNode(t, 10021)
	b := n.addNode(t, 10022)
	link(t, a, b)

	var delivered []byte
	b.sw.cb.OnFrame = func(networkID uint64, from identity.Address, frame []byte) {
		delivered = append([]byte(nil), frame...)
	}

	big := make([]byte, 3000)
	for i := range big {
		big[i] = byte(i)
	}
	framePayload := make([]byte, 8+len(big))
	copy(framePayload[8:], big)

	a.sw.Send(nil, b.identity.Address(), VerbFrame, framePayload)
	n.drain()

	if len(delivered) != len(big) {
		t.Fatalf("expected %d bytes delivered, got %d", len(big), len(delivered))
	}
	for i := range big {
		if delivered[i] != big[i] {
			t.Fatalf("payload mismatch at byte %d", i)
		}
	}
}

func TestFragmentedFrameDropsOnPartialLoss(t *testing.T) {
	n := newTestNet()
	a := n.addNode(t, 10023)
	b := n.addNode(t, 10024)
	link(t, a, b)

	delivered := false
	b.sw.cb.OnFrame = func(networkID uint64, from identity.Address, frame []byte) { delivered = true }

	dropNext := true
	n.drop = func(raw []byte) bool {
		if dropNext && proto.IsFragment(raw) {
			dropNext = false
			return true
		}
		return false
	}

	big := make([]byte, 3000)
	framePayload := make([]byte, 8+len(big))
	a.sw.Send(nil, b.identity.Address(), VerbFrame, framePayload)
	n.drain()

	if delivered {
		t.Fatal("expected no delivery with a dropped fragment")
	}
	b.sw.ExpireState(nil, time.Now().Add(DefaultReassemblyWindow+50*time.Millisecond))
	if len(b.sw.reasm.entries) != 0 {
		t.Fatal("expected the incomplete reassembly slot to expire and free its memory")
	}
}

func TestWhoisResolvesThroughRoot(t *testing.T) {
	n := newTestNet()
	a := n.addNode(t, 10031)
	root := n.addNode(t, 10032)
	b := n.addNode(t, 10033)

	aSeesRoot, _ := link(t, a, root)
	aSeesRoot.SetRole(nil, peer.RoleRoot)
	phony.Block(aSeesRoot, func() {}) // wait for the role Act to land before routing through it

	if _, _, _, err := root.top.GetOrCreate(nil, b.identity); err != nil {
		t.Fatal(err)
	}

	a.sw.Send(nil, b.identity.Address(), VerbEcho, []byte("hi"))
	n.drain()

	if _, _, ok := a.top.Lookup(b.identity.Address()); !ok {
		t.Fatal("expected the WHOIS round trip through root to resolve b's identity")
	}
}
