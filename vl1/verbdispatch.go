package vl1

import (
	"encoding/binary"
	"net"
	"strings"
	"time"

	"github.com/vlcore/engine/identity"
	"github.com/vlcore/engine/peer"
)

// replyPrefixSize is [inReplyToVerb:1][inReplyToPacketID:8], the header
// every OK/ERROR carries so the original requester can match a response
// to its request (spec.md §4.3's "verb-level responses provide
// end-to-end confirmation").
const replyPrefixSize = 1 + 8

func okPayload(inReplyTo Verb, inReplyToPacketID uint64, body []byte) []byte {
	out := make([]byte, 0, replyPrefixSize+len(body))
	out = append(out, byte(inReplyTo))
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], inReplyToPacketID)
	out = append(out, idBuf[:]...)
	return append(out, body...)
}

func errorPayload(inReplyTo Verb, inReplyToPacketID uint64, code ErrorCode, detail []byte) []byte {
	out := okPayload(inReplyTo, inReplyToPacketID, nil)
	out = append(out, byte(code))
	return append(out, detail...)
}

func decodeReplyPrefix(payload []byte) (inReplyTo Verb, inReplyToPacketID uint64, body []byte, ok bool) {
	if len(payload) < replyPrefixSize {
		return 0, 0, nil, false
	}
	inReplyTo = Verb(payload[0])
	inReplyToPacketID = binary.BigEndian.Uint64(payload[1:9])
	return inReplyTo, inReplyToPacketID, payload[9:], true
}

// handleVerb dispatches an authenticated, decrypted payload to its verb
// handler. p has already had NoteAuthenticatedReceive applied.
func (s *Switch) handleVerb(p *peer.Peer, verb Verb, payload []byte) {
	switch verb {
	case VerbOK:
		s.handleOK(p, payload)
	case VerbError:
		s.handleError(p, payload)
	case VerbWhois:
		s.handleWhois(p, payload)
	case VerbRendezvous:
		s.handleRendezvous(p, payload)
	case VerbFrame:
		s.handleFrame(p, payload)
	case VerbExtFrame:
		s.handleExtFrame(p, payload)
	case VerbMulticastLike:
		if s.cb.OnMulticastLike != nil {
			s.cb.OnMulticastLike(p.Address, payload)
		}
	case VerbMulticastGather:
		if s.cb.OnMulticastGather != nil {
			s.cb.OnMulticastGather(p.Address, payload)
		}
	case VerbMulticastGatherReply:
		if s.cb.OnMulticastGatherReply != nil {
			s.cb.OnMulticastGatherReply(p.Address, payload)
		}
	case VerbMulticastFrame:
		if s.cb.OnMulticastFrame != nil {
			s.cb.OnMulticastFrame(p.Address, payload)
		}
	case VerbNetworkConfigRequest:
		if s.cb.OnNetworkConfigRequest != nil {
			s.cb.OnNetworkConfigRequest(p.Address, payload)
		}
	case VerbNetworkConfigRefresh:
		if s.cb.OnNetworkConfigRefresh != nil {
			s.cb.OnNetworkConfigRefresh(p.Address, payload)
		}
	case VerbEcho:
		s.sendLocked(p.Address, VerbOK, okPayload(VerbEcho, 0, payload))
	case VerbPushDirectPaths:
		s.handlePushDirectPaths(p, payload)
	case VerbCircuitTest:
		if s.cb.OnCircuitTest != nil {
			s.cb.OnCircuitTest(p.Address, payload)
		}
	case VerbCircuitTestReport:
		if s.cb.OnCircuitTestReport != nil {
			s.cb.OnCircuitTestReport(p.Address, payload)
		}
	case VerbWorldUpdate:
		if s.cb.OnWorldUpdate != nil {
			s.cb.OnWorldUpdate(p.Address, payload)
		}
	}
}

func (s *Switch) handleWhois(p *peer.Peer, payload []byte) {
	if len(payload) < identity.AddressSize {
		return
	}
	target := identity.AddressFromBytes(payload[:identity.AddressSize])
	resolved, _, ok := s.top.Lookup(target)
	if !ok {
		s.sendLocked(p.Address, VerbError, errorPayload(VerbWhois, 0, ErrorObjNotFound, nil))
		return
	}
	body := []byte(resolved.Identity().Serialize(false))
	s.sendLocked(p.Address, VerbOK, okPayload(VerbWhois, 0, body))
}

func (s *Switch) handleOK(p *peer.Peer, payload []byte) {
	inReplyTo, _, body, ok := decodeReplyPrefix(payload)
	if !ok {
		return
	}
	if inReplyTo != VerbWhois {
		return
	}
	resolvedIdentity, err := identity.Parse(string(body))
	if err != nil {
		return
	}
	resolved, _, _, err := s.top.GetOrCreate(s, resolvedIdentity)
	if err != nil {
		return
	}
	s.flushPendingOutboundLocked(resolved)
}

func (s *Switch) handleError(p *peer.Peer, payload []byte) {
	inReplyTo, _, body, ok := decodeReplyPrefix(payload)
	if !ok || len(body) < 1 {
		return
	}
	_ = inReplyTo // diagnostics only; spec.md §7: errors update state, never unwind a caller
}

func (s *Switch) handleRendezvous(p *peer.Peer, payload []byte) {
	if len(payload) <= identity.AddressSize {
		return
	}
	target := identity.AddressFromBytes(payload[:identity.AddressSize])
	endpoint := string(payload[identity.AddressSize:])
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return
	}
	tp, _, ok := s.top.Lookup(target)
	if !ok {
		return
	}
	tp.AddCandidatePath(s, nil, addr)
	// Punch: burst a HELLO at the candidate endpoint right away rather
	// than waiting for the next probe interval.
	s.transmitSealed(tp.Address, tp.SharedKey(), nil, addr, VerbHello, helloPayload(s.local))
	tp.NoteHelloSent(s, time.Now())
}

func (s *Switch) handleFrame(p *peer.Peer, payload []byte) {
	if s.cb.OnFrame == nil || len(payload) < 8 {
		return
	}
	networkID := binary.BigEndian.Uint64(payload[:8])
	s.cb.OnFrame(networkID, p.Address, payload[8:])
}

func (s *Switch) handleExtFrame(p *peer.Peer, payload []byte) {
	// EXT_FRAME carries one extra flags byte (certificate-of-membership
	// presence) ahead of the same [networkID:8][frame] body as FRAME.
	if s.cb.OnFrame == nil || len(payload) < 9 {
		return
	}
	networkID := binary.BigEndian.Uint64(payload[1:9])
	s.cb.OnFrame(networkID, p.Address, payload[9:])
}

func (s *Switch) handlePushDirectPaths(p *peer.Peer, payload []byte) {
	for _, endpoint := range strings.Split(string(payload), "\n") {
		if endpoint == "" {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", endpoint)
		if err != nil {
			continue
		}
		p.AddCandidatePath(s, nil, addr)
	}
}
