package vl1

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"time"

	"github.com/Arceliar/phony"

	"github.com/vlcore/engine/identity"
	"github.com/vlcore/engine/peer"
	"github.com/vlcore/engine/proto"
	"github.com/vlcore/engine/topology"
)

// Default timers, per spec.md §4.3/§8.
const (
	DefaultDedupWindow      = time.Second
	DefaultReassemblyWindow = 500 * time.Millisecond
	DefaultRxParkTTL        = 5 * time.Second
	DefaultWhoisRetry       = time.Second
	DefaultHelloInterval    = 60 * time.Second
	DefaultPathDeadTimeout  = 180 * time.Second
	DefaultHelloProbe       = 2 * time.Second
)

// Callbacks are the host-supplied hooks a Switch needs to move bytes on
// and off the wire, and to hand verbs owned by a higher layer (VL2
// network membership, multicast) up to whatever owns that layer. Every
// field is optional except WireSend; nil handlers are simply skipped,
// mirroring the teacher's NetworkConfig option-function fields
// (network/config.go).
type Callbacks struct {
	// WireSend transmits a fully-framed packet from local to remote.
	WireSend func(local, remote net.Addr, raw []byte) error

	OnFrame                func(networkID uint64, from identity.Address, etherFrame []byte)
	OnMulticastLike        func(from identity.Address, payload []byte)
	OnMulticastGather      func(from identity.Address, payload []byte)
	OnMulticastGatherReply func(from identity.Address, payload []byte)
	OnMulticastFrame       func(from identity.Address, payload []byte)
	OnNetworkConfigRequest func(from identity.Address, payload []byte)
	OnNetworkConfigRefresh func(from identity.Address, payload []byte)
	OnCircuitTest          func(from identity.Address, payload []byte)
	OnCircuitTestReport    func(from identity.Address, payload []byte)
	OnWorldUpdate          func(from identity.Address, payload []byte)

	// OnIdentityCollision fires when a HELLO's claimed identity hashes to
	// an address we already have a *different* identity on file for
	// (spec.md §6's IDENTITY_COLLISION event). The colliding HELLO is
	// otherwise ignored: the first identity seen for an address wins.
	OnIdentityCollision func(addr identity.Address)
}

// Switch is the packet pump described by spec.md §4: inbound dispatch,
// outbound send/fragment/relay, WHOIS, and NAT rendezvous. All mutable
// state (dedup/reassembly/whois tables, the pre-peer send queue) is
// confined to its own phony.Inbox mailbox.
type Switch struct {
	phony.Inbox

	local *identity.Identity
	top   *topology.Topology
	cb    Callbacks

	dedup *dedupTable
	reasm *reassemblyTable
	rxWhois *whoisTable

	helloEvery time.Duration
	helloProbe time.Duration
	pathDead   time.Duration

	// pendingOutbound holds payloads for a destination with no known Peer
	// yet (we don't even have its Identity), flushed once WHOIS resolves it.
	pendingOutbound     map[identity.Address][]outboundItem
	outboundWhoisSentAt map[identity.Address]time.Time
}

type outboundItem struct {
	verb    Verb
	payload []byte
}

// New constructs a Switch. local must carry a private key.
func New(local *identity.Identity, top *topology.Topology, cb Callbacks) *Switch {
	if cb.WireSend == nil {
		panic("vl1: Callbacks.WireSend is required")
	}
	return &Switch{
		local:               local,
		top:                 top,
		cb:                  cb,
		dedup:               newDedupTable(DefaultDedupWindow),
		reasm:               newReassemblyTable(DefaultReassemblyWindow),
		rxWhois:             newWhoisTable(DefaultRxParkTTL, DefaultWhoisRetry),
		helloEvery:          DefaultHelloInterval,
		helloProbe:          DefaultHelloProbe,
		pathDead:            DefaultPathDeadTimeout,
		pendingOutbound:     make(map[identity.Address][]outboundItem),
		outboundWhoisSentAt: make(map[identity.Address]time.Time),
	}
}

func randomPacketID() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	id := binary.BigEndian.Uint64(b[:])
	if id == 0 {
		id = 1
	}
	return id
}

// ---- Outbound ----

// Send transmits verb/payload to dest, looking up or establishing routing
// as needed (spec.md §4.3's outbound pipeline).
// Send is synchronous with respect to the caller (spec.md §5:
// "operations are synchronous and non-blocking by contract"): it returns
// once the packet has hit the wire-send callback, been queued, or been
// parked, serialized against the Switch's own mailbox via phony.Block.
func (s *Switch) Send(from phony.Actor, dest identity.Address, verb Verb, payload []byte) {
	phony.Block(s, func() { s.sendLocked(dest, verb, payload) })
}

func (s *Switch) sendLocked(dest identity.Address, verb Verb, payload []byte) {
	if dest == s.local.Address() || dest.IsReserved() {
		return
	}
	p, _, ok := s.top.Lookup(dest)
	if !ok {
		s.pendingOutbound[dest] = append(s.pendingOutbound[dest], outboundItem{verb: verb, payload: payload})
		s.queryOutboundWhoisLocked(dest)
		return
	}
	s.deliverToPeer(p, verb, payload)
}

// deliverToPeer sends directly if a confirmed path exists; otherwise it
// queues on the peer and reaches for a relay while probing for a direct
// path, per spec.md §4.3.
func (s *Switch) deliverToPeer(p *peer.Peer, verb Verb, payload []byte) {
	now := time.Now()
	if best := p.BestPath(); best != nil {
		s.transmitSealed(p.Address, p.SharedKey(), best.Local, best.Remote, verb, payload)
		if p.DueForHello(now, s.helloEvery) {
			s.sendHello(p, best.Local, best.Remote)
		}
		return
	}
	p.Enqueue(s, byte(verb), payload, now)
	if !p.ShouldProbeHello(now, s.helloProbe) {
		return
	}
	for _, candidate := range p.Paths() {
		s.sendHello(p, candidate.Local, candidate.Remote)
	}
	p.NoteHelloSent(s, now)
	if relay := s.top.BestRelay(now); relay != nil {
		if rp := relay.BestPath(); rp != nil {
			// Relay the queued traffic: seal it addressed to the real
			// destination under the destination's own shared key, but put
			// the bytes on the wire toward the relay. The relay forwards by
			// Dest address without ever decrypting (see onWirePacket).
			for _, item := range p.DrainQueue(s) {
				s.transmitSealed(p.Address, p.SharedKey(), rp.Local, rp.Remote, Verb(item.Verb), item.Payload)
			}
		}
	}
}

// transmitSealed seals verb/payload for dest under sharedKey and writes it
// (fragmenting if needed) to local/remote.
func (s *Switch) transmitSealed(dest identity.Address, sharedKey *[32]byte, local, remote net.Addr, verb Verb, payload []byte) {
	cipher := proto.CipherSalsaPoly1305
	if verb == VerbHello {
		cipher = proto.CipherNone
	}
	h := &proto.Header{
		PacketID: randomPacketID(),
		Dest:     dest,
		Source:   s.local.Address(),
		Cipher:   cipher,
		Verb:     byte(verb),
	}
	// The ciphertext is exactly len(payload) long (a stream cipher), so
	// whether this will need fragments is known before sealing; the flag
	// must be set now since it feeds the MAC's canonical header.
	if proto.HeaderSize+1+len(payload) > proto.HeadPayloadMTU {
		h.Flags |= proto.FlagFragmented
	}
	sealed := proto.Seal(h, payload, sharedKey, nil)
	s.writeSealedPacket(h, sealed, local, remote)
}

// writeSealedPacket fragments a fully-sealed packet if it exceeds the head
// MTU and writes each piece to the wire.
func (s *Switch) writeSealedPacket(h *proto.Header, sealed []byte, local, remote net.Addr) {
	head, tails, err := proto.SplitPayload(sealed)
	if err != nil {
		return // oversized beyond 16 fragments total: drop, per spec.md §4.2
	}
	_ = s.cb.WireSend(local, remote, head)
	for i, tail := range tails {
		f := &proto.Fragment{
			PacketID:   h.PacketID,
			Dest:       h.Dest,
			FragNo:     byte(i + 1),
			TotalFrags: byte(len(tails) + 1),
			Hops:       h.Hops,
		}
		raw := f.Encode(make([]byte, 0, proto.FragmentHeaderSize+len(tail)))
		raw = append(raw, tail...)
		_ = s.cb.WireSend(local, remote, raw)
	}
}

func (s *Switch) sendHello(p *peer.Peer, local, remote net.Addr) {
	s.transmitSealed(p.Address, p.SharedKey(), local, remote, VerbHello, helloPayload(s.local))
	p.NoteHelloSent(s, time.Now())
}

func helloPayload(id *identity.Identity) []byte {
	ser := []byte(id.Serialize(false))
	out := make([]byte, 0, 3+len(ser))
	out = append(out, 1, 0, 0) // protocol version triple; this engine speaks one version
	out = append(out, ser...)
	return out
}

// queryOutboundWhoisLocked sends a WHOIS for target to the best-known
// root, if one isn't already outstanding (or its retry window elapsed).
func (s *Switch) queryOutboundWhoisLocked(target identity.Address) {
	now := time.Now()
	if sentAt, ok := s.outboundWhoisSentAt[target]; ok && now.Sub(sentAt) < DefaultWhoisRetry {
		return
	}
	root := s.top.BestRoot()
	if root == nil {
		return
	}
	s.outboundWhoisSentAt[target] = now
	var body [identity.AddressSize]byte
	target.PutBytes(body[:])
	s.deliverToPeer(root, VerbWhois, body[:])
}
