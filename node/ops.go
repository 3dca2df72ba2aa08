package node

import (
	"net"
	"strings"
	"time"

	"github.com/vlcore/engine/cluster"
	"github.com/vlcore/engine/identity"
	"github.com/vlcore/engine/multicast"
	"github.com/vlcore/engine/path"
	"github.com/vlcore/engine/peer"
	"github.com/vlcore/engine/vl1"
	"github.com/vlcore/engine/vl2"
)

// Join requests membership in nwid, creating the client-side Network
// state machine if this is the first join. Re-joining an already-joined
// network re-requests its config (a refresh).
func (n *Node) Join(nwid vl2.NetworkID, metadata map[string]string) ResultCode {
	if code, fatal := n.Fatal(); fatal {
		return code
	}
	return n.guarded(func() ResultCode {
		nw, fresh := n.networkLocked(nwid)
		if fresh {
			if cached, ok := n.loadCachedConfig(nwid); ok {
				nw.HandleConfigReply(nil, cached)
			}
		}
		if code, fatal := n.Fatal(); fatal {
			return code
		}
		nw.Join(nil, metadata)
		return ResultOK
	})
}

// Leave tears down membership in nwid.
func (n *Node) Leave(nwid vl2.NetworkID) ResultCode {
	if code, fatal := n.Fatal(); fatal {
		return code
	}
	return n.guarded(func() ResultCode {
		n.mu.Lock()
		nw, ok := n.networks[nwid]
		if ok {
			delete(n.networks, nwid)
		}
		n.mu.Unlock()
		if !ok {
			return ResultErrorNetworkNotFound
		}
		nw.Leave(nil)
		return ResultOK
	})
}

// networkLocked returns the Network for nwid, creating it (wired to this
// node's switch and, if this node is nwid's own controller, a local
// ConfigMaster) if it doesn't exist yet. fresh reports whether a Network
// was just created, so the caller can apply a cached config to it without
// doing so while n.mu is held (the host's NetworkConfig callback may want
// to call back into the node).
func (n *Node) networkLocked(nwid vl2.NetworkID) (nw *vl2.Network, fresh bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if nw, ok := n.networks[nwid]; ok {
		return nw, false
	}
	nw = vl2.New(n.local, nwid, n.sw, func(event vl2.PortEvent, cfg *vl2.NetworkConfig) {
		if n.cb.NetworkConfig != nil {
			n.cb.NetworkConfig(nwid, event, cfg)
		}
	})
	if n.netconfMaster != nil && nwid.ControllerAddress() == n.local.Address() {
		nw.SetController(n.netconfMaster)
	}
	n.networks[nwid] = nw
	return nw, true
}

// maxCachedConfigSize bounds a single data-store read for a cached network
// config; real configs are well under this.
const maxCachedConfigSize = 64 * 1024

// loadCachedConfig reads a previously persisted config for nwid out of the
// host data store, so a rejoin can apply last-known-good membership before
// a fresh NETWORK_CONFIG_REQUEST round trip completes.
func (n *Node) loadCachedConfig(nwid vl2.NetworkID) ([]byte, bool) {
	if n.cb.DataStoreGet == nil {
		return nil, false
	}
	buf := make([]byte, maxCachedConfigSize)
	got := n.cb.DataStoreGet(networkConfigKey(nwid), buf, 0)
	if got == -2 {
		n.markFatal(ResultErrorDataStore)
	}
	if got <= 0 {
		return nil, false
	}
	return buf[:got], true
}

// SetNetconfMaster installs the ConfigMaster this node answers
// NETWORK_CONFIG_REQUESTs with, for networks it controls (spec.md §6:
// "setNetconfMaster — for nodes acting as controllers").
func (n *Node) SetNetconfMaster(master vl2.ConfigMaster) ResultCode {
	if code, fatal := n.Fatal(); fatal {
		return code
	}
	n.mu.Lock()
	n.netconfMaster = master
	for nwid, nw := range n.networks {
		if nwid.ControllerAddress() == n.local.Address() {
			nw.SetController(master)
		}
	}
	n.mu.Unlock()
	return ResultOK
}

// MulticastSubscribe registers local interest in a group on nwid. mac==0
// && adi==0 means "all groups", matching spec.md §6's wildcard.
func (n *Node) MulticastSubscribe(nwid vl2.NetworkID, mac [6]byte, adi uint32) ResultCode {
	if code, fatal := n.Fatal(); fatal {
		return code
	}
	n.mc.Subscribe(nil, uint64(nwid), multicastGroup(mac, adi))
	return ResultOK
}

// MulticastUnsubscribe drops local interest previously registered via
// MulticastSubscribe.
func (n *Node) MulticastUnsubscribe(nwid vl2.NetworkID, mac [6]byte, adi uint32) ResultCode {
	if code, fatal := n.Fatal(); fatal {
		return code
	}
	n.mc.Unsubscribe(nil, uint64(nwid), multicastGroup(mac, adi))
	return ResultOK
}

func multicastGroup(mac [6]byte, adi uint32) multicast.Group {
	return multicast.Group{MAC: mac, ADI: adi}
}

// ---- queries ----

// PeerInfo is a query-time snapshot of one known peer.
type PeerInfo struct {
	Address     identity.Address
	Role        peer.Role
	State       peer.State
	LastReceive time.Time
	Paths       []*path.Path
}

// Peers returns a snapshot of every currently known peer.
func (n *Node) Peers() []PeerInfo {
	all := n.top.All()
	out := make([]PeerInfo, 0, len(all))
	for _, p := range all {
		out = append(out, PeerInfo{
			Address:     p.Address,
			Role:        p.Role(),
			State:       p.State(),
			LastReceive: p.LastReceive(),
			Paths:       p.Paths(),
		})
	}
	return out
}

// Status is a top-level snapshot of node health.
type Status struct {
	Address identity.Address
	Online  bool
	Peers   int
	Roots   int
}

func (n *Node) Status() Status {
	return Status{
		Address: n.local.Address(),
		Online:  n.wasOnline.Load(),
		Peers:   len(n.top.All()),
		Roots:   len(n.top.Roots()),
	}
}

// NetworkConfig returns the last applied config for nwid, if joined.
func (n *Node) NetworkConfig(nwid vl2.NetworkID) (*vl2.NetworkConfig, ResultCode) {
	n.mu.Lock()
	nw, ok := n.networks[nwid]
	n.mu.Unlock()
	if !ok {
		return nil, ResultErrorNetworkNotFound
	}
	return nw.Config(), ResultOK
}

// Networks lists every network this node has joined (or attempted to).
func (n *Node) Networks() []vl2.NetworkID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]vl2.NetworkID, 0, len(n.networks))
	for id := range n.networks {
		out = append(out, id)
	}
	return out
}

// ---- local interface addresses ----

// AddLocalInterfaceAddress records a locally reachable endpoint the host
// wants advertised as a PUSH_DIRECT_PATHS candidate, and immediately
// announces the updated address set to every known peer.
func (n *Node) AddLocalInterfaceAddress(addr net.Addr, metric int, trust TrustLevel) ResultCode {
	if code, fatal := n.Fatal(); fatal {
		return code
	}
	n.mu.Lock()
	n.localAddrs = append(n.localAddrs, LocalInterfaceAddress{Addr: addr, Metric: metric, Trust: trust})
	n.mu.Unlock()
	n.announceDirectPaths()
	return ResultOK
}

// announceDirectPaths sends every registered local interface address to
// every known peer as a PUSH_DIRECT_PATHS candidate list (spec.md §4.3's
// NAT-traversal hinting), encoded the way vl1/verbdispatch.go's
// handlePushDirectPaths expects: one resolvable endpoint per line.
func (n *Node) announceDirectPaths() {
	addrs := n.LocalInterfaceAddresses()
	if len(addrs) == 0 {
		return
	}
	lines := make([]string, len(addrs))
	for i, a := range addrs {
		lines[i] = a.Addr.String()
	}
	payload := []byte(strings.Join(lines, "\n"))
	for _, p := range n.top.All() {
		n.sw.Send(nil, p.Address, vl1.VerbPushDirectPaths, payload)
	}
}

// ClearLocalInterfaceAddresses forgets every address AddLocalInterfaceAddress
// registered.
func (n *Node) ClearLocalInterfaceAddresses() ResultCode {
	n.mu.Lock()
	n.localAddrs = nil
	n.mu.Unlock()
	return ResultOK
}

// LocalInterfaceAddresses returns a snapshot of registered addresses.
func (n *Node) LocalInterfaceAddresses() []LocalInterfaceAddress {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]LocalInterfaceAddress, len(n.localAddrs))
	copy(out, n.localAddrs)
	return out
}

// ---- circuit test ----

// CircuitTestBegin starts a hop-by-hop reachability probe along
// test.Hops, invoking report as each hop acknowledges receipt.
func (n *Node) CircuitTestBegin(test *CircuitTest, report CircuitTestReportFunc) ResultCode {
	if code, fatal := n.Fatal(); fatal {
		return code
	}
	if len(test.Hops) == 0 || len(test.Hops) > MaxCircuitTestHops {
		return ResultErrorBadParameter
	}
	n.mu.Lock()
	n.circuitTests[test.ID] = report
	n.mu.Unlock()
	first := test.Hops[0]
	remaining := test.Hops[1:]
	n.sw.Send(nil, first, vl1.VerbCircuitTest, encodeCircuitTest(test.ID, n.local.Address(), remaining))
	return ResultOK
}

// CircuitTestEnd stops tracking reports for a previously started test.
func (n *Node) CircuitTestEnd(testID uint64) ResultCode {
	n.mu.Lock()
	delete(n.circuitTests, testID)
	n.mu.Unlock()
	return ResultOK
}

// ---- cluster ----

// ClusterInit installs a Cluster for this node, so peer ownership can be
// shared across cooperating engine instances (spec.md §6/§4.6). endpoints
// is the initial member roster (excluding myID, which is added
// implicitly by every other member).
func (n *Node) ClusterInit(myID cluster.MemberID, endpoints []cluster.MemberID, masterSecret []byte, send cluster.SendFunc, locate cluster.LocateFunc) ResultCode {
	if code, fatal := n.Fatal(); fatal {
		return code
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cl = cluster.New(myID, masterSecret, send, locate)
	for _, id := range endpoints {
		n.cl.AddMember(nil, id)
	}
	return ResultOK
}

// ClusterAddMember registers a new cluster peer.
func (n *Node) ClusterAddMember(id cluster.MemberID) ResultCode {
	n.mu.Lock()
	cl := n.cl
	n.mu.Unlock()
	if cl == nil {
		return ResultErrorUnsupported
	}
	cl.AddMember(nil, id)
	return ResultOK
}

// ClusterRemoveMember forgets a cluster peer.
func (n *Node) ClusterRemoveMember(id cluster.MemberID) ResultCode {
	n.mu.Lock()
	cl := n.cl
	n.mu.Unlock()
	if cl == nil {
		return ResultErrorUnsupported
	}
	cl.RemoveMember(nil, id)
	return ResultOK
}

// ClusterHandleIncomingMessage authenticates and dispatches a backplane
// message received from cluster member sender.
func (n *Node) ClusterHandleIncomingMessage(sender cluster.MemberID, raw []byte) ResultCode {
	n.mu.Lock()
	cl := n.cl
	n.mu.Unlock()
	if cl == nil {
		return ResultErrorUnsupported
	}
	if err := cl.HandleIncoming(nil, sender, raw, time.Now()); err != nil {
		return ResultErrorBadParameter
	}
	return ResultOK
}

// ClusterStatus reports the cluster's current view, if one is installed.
func (n *Node) ClusterStatus() (cluster.Status, ResultCode) {
	n.mu.Lock()
	cl := n.cl
	n.mu.Unlock()
	if cl == nil {
		return cluster.Status{}, ResultErrorUnsupported
	}
	return cl.Status(), ResultOK
}
