package vl1

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/Arceliar/phony"

	"github.com/vlcore/engine/identity"
	"github.com/vlcore/engine/peer"
	"github.com/vlcore/engine/proto"
)

// OnWirePacket is the switch's inbound entry point (spec.md §4.3):
// validate length, relay if not addressed to us, otherwise reassemble,
// dedup, resolve source, verify+decrypt, and dispatch the verb.
func (s *Switch) OnWirePacket(from phony.Actor, local, remote net.Addr, raw []byte) {
	phony.Block(s, func() { s.onWirePacketLocked(local, remote, raw) })
}

func (s *Switch) onWirePacketLocked(local, remote net.Addr, raw []byte) {
	if len(raw) < proto.MinPacketSize {
		return
	}
	dest := identity.AddressFromBytes(raw[8:13])
	if dest != s.local.Address() {
		s.relayRawLocked(local, remote, raw, dest)
		return
	}

	now := time.Now()
	if proto.IsFragment(raw) {
		var f proto.Fragment
		data, err := proto.DecodeFragment(&f, raw)
		if err != nil {
			return
		}
		key := reassemblyKey{remote: remote.String(), packetID: f.PacketID}
		complete, done := s.reasm.AddTail(now, key, f.FragNo, f.TotalFrags, data)
		if !done {
			return
		}
		s.processCompletePacketLocked(now, local, remote, complete)
		return
	}

	packetID := binary.BigEndian.Uint64(raw[0:8])
	flags := (raw[18] >> 5) & 0x7
	if flags&proto.FlagFragmented == 0 {
		s.processCompletePacketLocked(now, local, remote, raw)
		return
	}
	key := reassemblyKey{remote: remote.String(), packetID: packetID}
	complete, done := s.reasm.AddHead(now, key, raw)
	if !done {
		return
	}
	s.processCompletePacketLocked(now, local, remote, complete)
}

// processCompletePacketLocked handles a packet known to be fully
// reassembled and addressed to us: dedup, authenticate, dispatch.
func (s *Switch) processCompletePacketLocked(now time.Time, local, remote net.Addr, complete []byte) {
	var h proto.Header
	payload, err := proto.DecodeHeader(&h, complete)
	if err != nil {
		return
	}
	if s.dedup.CheckAndMark(now, h.Source, h.PacketID) {
		return
	}
	s.dispatch(now, local, remote, complete, &h, payload)
}

// relayRawLocked forwards a packet not addressed to us, bounding hops at
// MaxHops (spec.md §4.3). Relays never decrypt: they only ever look at
// the wire header's dest field and hop count.
func (s *Switch) relayRawLocked(local, remote net.Addr, raw []byte, dest identity.Address) {
	fragment := proto.IsFragment(raw)
	hopsIdx := 18
	if fragment {
		hopsIdx = 15
	}
	if hopsIdx >= len(raw) {
		return
	}
	var hops byte
	if fragment {
		hops = (raw[hopsIdx] >> 5) & 0x7
	} else {
		hops = (raw[hopsIdx] >> 2) & 0x7
	}
	if hops >= proto.MaxHops {
		return
	}
	mutated := append([]byte(nil), raw...)
	if fragment {
		mutated[hopsIdx] = ((hops + 1) & 0x7) << 5
	} else {
		mutated[hopsIdx] = (mutated[hopsIdx] &^ (0x7 << 2)) | (((hops + 1) & 0x7) << 2)
	}

	if p, _, ok := s.top.Lookup(dest); ok {
		if best := p.BestPath(); best != nil {
			_ = s.cb.WireSend(best.Local, best.Remote, mutated)
			return
		}
	}
	if relay := s.top.BestRelay(time.Now()); relay != nil {
		if rp := relay.BestPath(); rp != nil {
			_ = s.cb.WireSend(rp.Local, rp.Remote, mutated)
		}
	}
}

// dispatch authenticates (or, for HELLO, bootstraps) the source peer and
// invokes the verb handler. complete is the full reassembled packet, kept
// around only so an unresolved source's packet can be parked verbatim and
// replayed once WHOIS answers.
func (s *Switch) dispatch(now time.Time, local, remote net.Addr, complete []byte, h *proto.Header, payload []byte) {
	if Verb(h.Verb) == VerbHello {
		s.handleHello(now, local, remote, h, payload)
		return
	}

	p, _, ok := s.top.Lookup(h.Source)
	if !ok {
		s.rxWhois.Park(now, h.Source, local, remote, complete)
		s.queryOutboundWhoisLocked(h.Source)
		return
	}
	plaintext, err := proto.Open(h, payload, p.SharedKey())
	if err != nil {
		return // MAC failure: silent drop, never a reply (spec.md §7)
	}
	p.NoteAuthenticatedReceive(s, now, local, remote)
	s.handleVerb(p, Verb(h.Verb), plaintext)
}

// handleHello bootstraps or re-confirms a peer from a cleartext HELLO,
// which always carries the sender's full public identity (spec.md §4.3's
// "RX from unknown -> HELLO_SENT" transition; here it is the receipt of a
// HELLO that lets us learn who sent it in the first place).
func (s *Switch) handleHello(now time.Time, local, remote net.Addr, h *proto.Header, payload []byte) {
	if len(payload) < 3 {
		return
	}
	remoteIdentity, err := identity.Parse(string(payload[3:]))
	if err != nil || remoteIdentity.Address() != h.Source {
		return
	}
	if existing, _, ok := s.top.Lookup(h.Source); ok && existing.Identity().PublicKey() != remoteIdentity.PublicKey() {
		if s.cb.OnIdentityCollision != nil {
			s.cb.OnIdentityCollision(h.Source)
		}
		return
	}
	p, _, _, err := s.top.GetOrCreate(s, remoteIdentity)
	if err != nil {
		return
	}
	plaintext, err := proto.Open(h, payload, p.SharedKey())
	if err != nil {
		return
	}
	_ = plaintext
	p.NoteAuthenticatedReceive(s, now, local, remote)
	s.flushPendingOutboundLocked(p)

	ok := okPayload(VerbHello, h.PacketID, helloPayload(s.local))
	s.deliverToPeer(p, VerbOK, ok)
}

// flushPendingOutboundLocked moves any payloads queued for p's address
// (because it was unknown when Send was called) into p's real queue.
func (s *Switch) flushPendingOutboundLocked(p *peer.Peer) {
	items := s.pendingOutbound[p.Address]
	delete(s.pendingOutbound, p.Address)
	delete(s.outboundWhoisSentAt, p.Address)
	now := time.Now()
	for _, item := range items {
		p.Enqueue(s, byte(item.verb), item.payload, now)
	}
	for _, item := range p.DrainQueue(s) {
		s.deliverToPeer(p, Verb(item.Verb), item.Payload)
	}
	for _, waiting := range s.rxWhois.Resolve(p.Address) {
		s.processCompletePacketLocked(now, waiting.local, waiting.remote, waiting.raw)
	}
}
