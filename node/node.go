// Package node implements the host-facing facade of spec.md §6: the only
// entry point a host program uses to drive the engine. It wires together
// topology (peer directory + roots), vl1 (the wire switch), vl2 (virtual
// network membership), multicast, and an optional cluster, and exposes
// the process*/join/leave/query operation set as plain Go methods rather
// than the C-ABI opaque-handle shape spec.md §6 describes, following the
// teacher's root `packetconn.go` facade-over-core idiom generalized from
// one fixed protocol to this module's layered one.
package node

import (
	"encoding/binary"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vlcore/engine/cluster"
	vcrypto "github.com/vlcore/engine/crypto"
	"github.com/vlcore/engine/identity"
	"github.com/vlcore/engine/multicast"
	"github.com/vlcore/engine/peer"
	"github.com/vlcore/engine/topology"
	"github.com/vlcore/engine/vl1"
	"github.com/vlcore/engine/vl2"
	"github.com/vlcore/engine/world"
)

// DefaultOnlineTimeout is T_online: how recently a root must have been
// heard from for the node to consider itself ONLINE.
const DefaultOnlineTimeout = 5 * time.Minute

// backgroundTick is the granularity processBackgroundTasks reports as its
// next-deadline hint when nothing more specific is pending. It matches
// vl1's HELLO probe interval; vl1's reassembly, dedup and WHOIS-retry
// windows are shorter than this tick.
const backgroundTick = vl1.DefaultHelloProbe

var broadcastMAC = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Node is the engine instance. Every exported method is safe to call from
// any number of goroutines concurrently (spec.md §5: "host may call ...
// from any number of threads in parallel"); internal state is owned by
// each subcomponent's own phony.Inbox or by n.mu for the facade's own
// bookkeeping (network table, local address list, cluster handle).
type Node struct {
	local *identity.Identity
	top   *topology.Topology
	sw    *vl1.Switch
	mc    *multicast.Multicaster
	cb    Callbacks

	onlineTimeout time.Duration

	mu            sync.Mutex
	networks      map[vl2.NetworkID]*vl2.Network
	netconfMaster vl2.ConfigMaster
	localAddrs    []LocalInterfaceAddress
	cl            *cluster.Cluster
	circuitTests  map[uint64]CircuitTestReportFunc

	fatal      atomic.Bool
	fatalCode  ResultCode
	reentrancy atomic.Bool

	wasOnline atomic.Bool
}

// New constructs a Node around local, which must carry a private key.
func New(local *identity.Identity, cb Callbacks, opts ...Option) (*Node, error) {
	if !local.HasPrivateKey() {
		return nil, ResultErrorBadParameter
	}
	if cb.WireSend == nil {
		return nil, ResultErrorBadParameter
	}
	n := &Node{
		local:         local,
		cb:            cb,
		onlineTimeout: DefaultOnlineTimeout,
		networks:      make(map[vl2.NetworkID]*vl2.Network),
		circuitTests:  make(map[uint64]CircuitTestReportFunc),
	}
	n.top = topology.New(local)
	n.mc = multicast.New(local.Address())
	n.sw = vl1.New(local, n.top, vl1.Callbacks{
		WireSend:               func(local, remote net.Addr, raw []byte) error { return cb.WireSend(local, remote, raw) },
		OnFrame:                n.onFrame,
		OnMulticastLike:        n.onMulticastLike,
		OnMulticastGather:      n.onMulticastGather,
		OnMulticastGatherReply: n.onMulticastGatherReply,
		OnMulticastFrame:       n.onMulticastFrame,
		OnNetworkConfigRequest: n.onNetworkConfigRequest,
		OnNetworkConfigRefresh: n.onNetworkConfigRefresh,
		OnCircuitTest:          n.onCircuitTest,
		OnCircuitTestReport:    n.onCircuitTestReport,
		OnWorldUpdate:          n.onWorldUpdate,
		OnIdentityCollision:    n.onIdentityCollision,
	})
	for _, opt := range opts {
		opt(n)
	}
	n.persist("identity.secret", []byte(local.Serialize(true)))
	n.cb.fireEvent(EventUp, nil)
	return n, nil
}

// persist writes data to the host's data store under key, latching the
// node fatal on a store failure (spec.md §7: "data-store callback's -2
// result triggers a fatal result from the enclosing operation").
func (n *Node) persist(key string, data []byte) {
	if n.cb.DataStorePut == nil {
		return
	}
	if err := n.cb.DataStorePut(key, data, true); err != nil {
		n.markFatal(ResultErrorDataStore)
	}
}

// Fatal reports whether the node has latched a fatal error and must be
// discarded (spec.md §7). Every process*/mutating call refuses once set.
func (n *Node) Fatal() (ResultCode, bool) {
	if n.fatal.Load() {
		return n.fatalCode, true
	}
	return ResultOK, false
}

func (n *Node) markFatal(code ResultCode) ResultCode {
	if n.fatal.CompareAndSwap(false, true) {
		n.fatalCode = code
	}
	return code
}

// Close tears the node down. It must not race with any in-flight process
// call (spec.md §6: "delete(node) — terminal; must not race with process
// calls" — the host is responsible for quiescing callers first).
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, nw := range n.networks {
		nw.Leave(nil)
	}
	n.networks = nil
	n.cb.fireEvent(EventDown, nil)
	return nil
}

// Address returns the node's own 40-bit address.
func (n *Node) Address() identity.Address { return n.local.Address() }

// LoadWorld verifies and installs a signed root list, registering each
// root as a topology peer with RoleRoot and seeding its announced
// endpoints as candidate paths so the next HELLO probe has somewhere to
// aim. This is the node-level caller topology.SetWorld needs (spec.md
// §3's World bootstrap), exposed here since only the facade knows the
// root-of-trust identity to verify against.
func (n *Node) LoadWorld(w *world.World, sig *vcrypto.Signature, rootOfTrust *identity.Identity) ResultCode {
	current := n.top.World()
	if err := world.Verify(w, sig, rootOfTrust, current); err != nil {
		return ResultErrorBadParameter
	}
	n.top.SetWorld(nil, w)
	for _, r := range w.Roots {
		p, _, _, err := n.top.GetOrCreate(nil, r.Identity)
		if err != nil {
			continue
		}
		p.SetRole(nil, peer.RoleRoot)
		for _, endpoint := range r.Endpoints {
			addr, err := net.ResolveUDPAddr("udp", endpoint)
			if err != nil {
				continue
			}
			p.AddCandidatePath(nil, nil, addr)
		}
	}
	return ResultOK
}

// ---- wire packet / frame / background processing ----

// ProcessWirePacket feeds one datagram received on local from remote into
// the switch. Returns a hint for when the host should next call
// ProcessBackgroundTasks.
func (n *Node) ProcessWirePacket(now time.Time, local, remote net.Addr, raw []byte) (time.Time, ResultCode) {
	if code, fatal := n.Fatal(); fatal {
		return now, code
	}
	rc := n.guarded(func() ResultCode {
		n.sw.OnWirePacket(nil, local, remote, raw)
		return ResultOK
	})
	n.updateOnlineState(now)
	return n.nextDeadline(now), rc
}

// ProcessVirtualNetworkFrame accepts one Ethernet frame the host's tap
// device produced on network nwid, addressed to dst, and routes it toward
// its destination member (or fans it out, if broadcast and the network
// permits it).
func (n *Node) ProcessVirtualNetworkFrame(now time.Time, nwid vl2.NetworkID, src, dst [6]byte, etherType, vlanID uint16, payload []byte) (time.Time, ResultCode) {
	if code, fatal := n.Fatal(); fatal {
		return now, code
	}
	var rc ResultCode
	rc = n.guarded(func() ResultCode {
		n.mu.Lock()
		nw, ok := n.networks[nwid]
		n.mu.Unlock()
		if !ok {
			return ResultErrorNetworkNotFound
		}
		if nw.Status() != vl2.StatusOK {
			return ResultOK // not yet up: silently drop, per spec.md §7
		}
		frame := buildEthernetFrame(dst, src, etherType, vlanID, payload)
		wire := frameWithNetworkID(nwid, frame)
		if dst == broadcastMAC {
			cfg := nw.Config()
			if cfg == nil || !cfg.EnableBroadcast {
				return ResultOK
			}
			for _, p := range n.top.All() {
				n.sw.Send(nil, p.Address, vl1.VerbFrame, wire)
			}
			return ResultOK
		}
		if addr, found := n.resolveMAC(nwid, dst); found {
			n.sw.Send(nil, addr, vl1.VerbFrame, wire)
		}
		return ResultOK
	})
	return n.nextDeadline(now), rc
}

// ProcessBackgroundTasks runs spec.md §4.7's seven ordered maintenance
// steps and returns when the host should call it again at the latest.
func (n *Node) ProcessBackgroundTasks(now time.Time) (time.Time, ResultCode) {
	if code, fatal := n.Fatal(); fatal {
		return now, code
	}
	rc := n.guarded(func() ResultCode {
		// 1. HELLO all peers due for refresh.
		for _, p := range n.top.All() {
			n.sw.HelloIfDue(nil, p.Address)
		}
		// 2. expire dead paths and parked RX.
		n.sw.ExpireState(nil, now)
		for _, p := range n.top.All() {
			p.GCPaths(nil, now, vl1.DefaultPathDeadTimeout)
		}
		// 3. re-request configs of networks not in StatusOK (still
		// requesting, or denied); an OK network's config is not
		// re-requested here, whatever its age.
		for _, nw := range n.snapshotNetworks() {
			if nw.Status() != vl2.StatusOK {
				nw.Join(nil, nil)
			}
		}
		// 4. re-broadcast MULTICAST_LIKEs due.
		for _, sub := range n.mc.DueForRefresh(now) {
			n.sendMulticastLike(sub)
			n.mc.MarkRefreshed(nil, sub.NetworkID, sub.Group, now)
			if n.mc.NeedsGather(sub.NetworkID, sub.Group) {
				n.sendMulticastGather(sub)
			}
		}
		// 5. age multicast subscriber sets.
		n.mc.Expire(now)
		// 6. cluster heartbeat and GC.
		if n.cl != nil {
			n.cl.Heartbeat(nil, now, uint32(len(n.top.All())))
			n.cl.ExpireDeadMembers(nil, now)
		}
		return ResultOK
	})
	n.updateOnlineState(now)
	// 7. compute the next deadline.
	return n.nextDeadline(now), rc
}

func (n *Node) snapshotNetworks() []*vl2.Network {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*vl2.Network, 0, len(n.networks))
	for _, nw := range n.networks {
		out = append(out, nw)
	}
	return out
}

func (n *Node) sendMulticastLike(sub multicast.Subscription) {
	nwid := vl2.NetworkID(sub.NetworkID)
	n.sw.Send(nil, nwid.ControllerAddress(), vl1.VerbMulticastLike, multicast.EncodeLike(sub.NetworkID, sub.Group))
}

func (n *Node) sendMulticastGather(sub multicast.Subscription) {
	nwid := vl2.NetworkID(sub.NetworkID)
	n.sw.Send(nil, nwid.ControllerAddress(), vl1.VerbMulticastGather, multicast.EncodeGather(sub.NetworkID, sub.Group, multicast.DefaultFanoutCap))
}

// nextDeadline is an approximate scheduling hint: the tightest timer any
// layer runs on. Exact per-peer/per-subscription deadlines aren't
// exposed outside their owning mailboxes, so this is deliberately
// conservative rather than precise.
func (n *Node) nextDeadline(now time.Time) time.Time {
	return now.Add(backgroundTick)
}

func (n *Node) updateOnlineState(now time.Time) {
	online := false
	for _, r := range n.top.Roots() {
		if now.Sub(r.LastReceive()) < n.onlineTimeout {
			online = true
			break
		}
	}
	if online && n.wasOnline.CompareAndSwap(false, true) {
		n.cb.fireEvent(EventOnline, nil)
	} else if !online && n.wasOnline.CompareAndSwap(true, false) {
		n.cb.fireEvent(EventOffline, nil)
	}
}

// resolveMAC finds which known peer derives to mac on network nwid.
// Since vl2.DeriveMAC is a one-way, cross-node-agreeing hash of
// (address, networkId), any node can resolve a MAC back to an address by
// scanning its own peer set rather than needing a separate ARP table.
func (n *Node) resolveMAC(nwid vl2.NetworkID, mac [6]byte) (identity.Address, bool) {
	for _, p := range n.top.All() {
		if vl2.DeriveMAC(p.Address, nwid) == mac {
			return p.Address, true
		}
	}
	return 0, false
}

func frameWithNetworkID(nwid vl2.NetworkID, frame []byte) []byte {
	out := make([]byte, 0, 8+len(frame))
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], uint64(nwid))
	out = append(out, idBuf[:]...)
	return append(out, frame...)
}

// ---- vl1 callback wiring ----

func (n *Node) onFrame(networkID uint64, from identity.Address, etherFrame []byte) {
	nwid := vl2.NetworkID(networkID)
	n.mu.Lock()
	nw, ok := n.networks[nwid]
	n.mu.Unlock()
	if !ok || nw.Status() != vl2.StatusOK {
		return
	}
	dst, src, etherType, vlanID, payload, ok2 := parseEthernetFrame(etherFrame)
	if !ok2 {
		return
	}
	if n.cb.Frame != nil {
		n.cb.Frame(nwid, src, dst, etherType, vlanID, payload)
	}
}

func (n *Node) onMulticastLike(from identity.Address, payload []byte) {
	networkID, g, err := multicast.DecodeLike(payload)
	if err != nil {
		return
	}
	n.mc.NoteLike(nil, networkID, g, from, time.Now())
}

func (n *Node) onMulticastGather(from identity.Address, payload []byte) {
	networkID, g, limit, err := multicast.DecodeGather(payload)
	if err != nil {
		return
	}
	subs := n.mc.KnownSubscribers(networkID, g)
	addrs := make([]identity.Address, 0, len(subs))
	for i, s := range subs {
		if uint16(i) >= limit {
			break
		}
		addrs = append(addrs, s.Address)
	}
	n.sw.Send(nil, from, vl1.VerbMulticastGatherReply, multicast.EncodeGatherReply(networkID, g, addrs))
}

func (n *Node) onMulticastGatherReply(from identity.Address, payload []byte) {
	networkID, g, subs, err := multicast.DecodeGatherReply(payload)
	if err != nil {
		return
	}
	n.mc.NoteGathered(nil, networkID, g, subs, time.Now())
}

func (n *Node) onMulticastFrame(from identity.Address, payload []byte) {
	networkID, g, frame, err := multicast.DecodeFrame(payload)
	if err != nil {
		return
	}
	nwid := vl2.NetworkID(networkID)
	n.mu.Lock()
	nw, ok := n.networks[nwid]
	n.mu.Unlock()
	if !ok || nw.Status() != vl2.StatusOK {
		return
	}
	dst, src, etherType, vlanID, ethPayload, ok2 := parseEthernetFrame(frame)
	if !ok2 {
		return
	}
	if n.cb.Frame != nil {
		n.cb.Frame(nwid, src, dst, etherType, vlanID, ethPayload)
	}
	for _, addr := range n.mc.Fanout(networkID, g) {
		if addr == from {
			continue
		}
		n.sw.Send(nil, addr, vl1.VerbMulticastFrame, payload)
	}
}

func (n *Node) onNetworkConfigRequest(from identity.Address, payload []byte) {
	nwid, metadata, err := vl2.DecodeConfigRequest(payload)
	if err != nil {
		return
	}
	n.mu.Lock()
	master := n.netconfMaster
	n.mu.Unlock()
	if master == nil {
		n.sw.Send(nil, from, vl1.VerbNetworkConfigRefresh, vl2.EncodeConfigRefresh(nwid, vl2.StatusNotFound, nil))
		return
	}
	cfg, status := master.RequestConfig(time.Now(), from, nwid, metadata)
	n.sw.Send(nil, from, vl1.VerbNetworkConfigRefresh, vl2.EncodeConfigRefresh(nwid, status, cfg))
}

func (n *Node) onNetworkConfigRefresh(from identity.Address, payload []byte) {
	nwid, _, _, err := vl2.DecodeConfigRefresh(payload)
	if err != nil {
		return
	}
	n.mu.Lock()
	nw, ok := n.networks[nwid]
	n.mu.Unlock()
	if !ok {
		return
	}
	// nw's own portConfig callback (wired in networkLocked) already
	// reports PortUp/PortConfigUpdate to the host as this transitions the
	// status; only the cache write belongs here.
	nw.HandleConfigReply(nil, payload)
	if nw.Config() != nil {
		n.persist(networkConfigKey(nwid), payload)
	}
}

func networkConfigKey(nwid vl2.NetworkID) string {
	return "networks/" + strconv.FormatUint(uint64(nwid), 16) + ".conf"
}

func (n *Node) onCircuitTest(from identity.Address, payload []byte) {
	testID, originator, remaining, err := decodeCircuitTest(payload)
	if err != nil {
		return
	}
	n.sw.Send(nil, originator, vl1.VerbCircuitTestReport, encodeCircuitTestReport(testID, n.local.Address()))
	if len(remaining) == 0 {
		return
	}
	next := remaining[0]
	n.sw.Send(nil, next, vl1.VerbCircuitTest, encodeCircuitTest(testID, originator, remaining[1:]))
}

func (n *Node) onCircuitTestReport(from identity.Address, payload []byte) {
	testID, hop, err := decodeCircuitTestReport(payload)
	if err != nil {
		return
	}
	n.mu.Lock()
	report := n.circuitTests[testID]
	n.mu.Unlock()
	if report != nil {
		report(testID, hop)
	}
}

func (n *Node) onWorldUpdate(from identity.Address, payload []byte) {
	n.cb.fireEvent(EventTrace, "world update received; use LoadWorld to apply")
}

func (n *Node) onIdentityCollision(addr identity.Address) {
	n.cb.fireEvent(EventIdentityCollision, addr)
}
