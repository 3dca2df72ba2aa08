package cluster

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/hkdf"

	"github.com/vlcore/engine/identity"
)

var (
	ErrMalformed  = errors.New("cluster: malformed backplane message")
	ErrBadHMAC    = errors.New("cluster: HMAC verification failed")
	ErrReplayed   = errors.New("cluster: counter outside the anti-replay window")
)

// macSize is HMAC-SHA512/256's 32-byte tag.
const macSize = sha512.Size256

// DeriveSessionKey derives the per-pair symmetric key two cluster members
// use to authenticate backplane traffic between them, via HKDF over the
// cluster's shared master secret (SPEC_FULL.md §9's recorded decision:
// "HMAC-SHA512/256 + HKDF-derived per-session key + monotonic
// counter/bitmap anti-replay"). The info string is built from the two
// member IDs in sorted order, so both directions of one pair derive the
// same key without needing to agree on who's the "initiator".
func DeriveSessionKey(masterSecret []byte, a, b MemberID) [32]byte {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	info := []byte{byte(lo), byte(hi)}
	r := hkdf.New(sha512.New, masterSecret, nil, info)
	var key [32]byte
	if _, err := r.Read(key[:]); err != nil {
		panic("cluster: HKDF expansion failed: " + err.Error())
	}
	return key
}

// MsgKind identifies a backplane message's payload shape, per spec.md
// §4.6's "HEARTBEAT, HAVE_PEER, WANT_PEER, REDIRECT, RELAY".
type MsgKind byte

const (
	MsgHeartbeat MsgKind = iota + 1
	MsgHavePeer
	MsgWantPeer
	MsgRedirect
	MsgRelay
)

// sealHeaderSize is [from:1][counter:8][kind:1].
const sealHeaderSize = 1 + 8 + 1

// seal authenticates and frames one outbound message: header + body + MAC.
func seal(key *[32]byte, from MemberID, counter uint64, kind MsgKind, body []byte) []byte {
	out := make([]byte, 0, sealHeaderSize+len(body)+macSize)
	out = append(out, byte(from))
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], counter)
	out = append(out, ctr[:]...)
	out = append(out, byte(kind))
	out = append(out, body...)

	mac := hmac.New(sha512.New512_256, key[:])
	mac.Write(out)
	return mac.Sum(out)
}

// open verifies and unframes an inbound message, returning the sender,
// counter, kind, and body.
func open(key *[32]byte, raw []byte) (from MemberID, counter uint64, kind MsgKind, body []byte, err error) {
	if len(raw) < sealHeaderSize+macSize {
		return 0, 0, 0, nil, ErrMalformed
	}
	signed := raw[:len(raw)-macSize]
	tag := raw[len(raw)-macSize:]

	mac := hmac.New(sha512.New512_256, key[:])
	mac.Write(signed)
	if !hmac.Equal(mac.Sum(nil), tag) {
		return 0, 0, 0, nil, ErrBadHMAC
	}

	from = MemberID(signed[0])
	counter = binary.BigEndian.Uint64(signed[1:9])
	kind = MsgKind(signed[9])
	body = signed[sealHeaderSize:]
	return from, counter, kind, body, nil
}

// replayWindow is a standard sliding-bitmap anti-replay window (as used
// for IPsec/SRTP sequence numbers): counters at or below highest-64 are
// rejected outright, counters above highest are always accepted and slide
// the window forward, and counters inside the window are accepted at most
// once.
type replayWindow struct {
	highest uint64
	bitmap  uint64 // bit i set means highest-i has been seen
	seeded  bool
}

// Accept reports whether counter is a fresh, in-window value, marking it
// seen if so.
func (w *replayWindow) Accept(counter uint64) bool {
	if !w.seeded {
		w.seeded = true
		w.highest = counter
		w.bitmap = 1
		return true
	}
	if counter > w.highest {
		shift := counter - w.highest
		if shift >= 64 {
			w.bitmap = 0
		} else {
			w.bitmap <<= shift
		}
		w.bitmap |= 1
		w.highest = counter
		return true
	}
	back := w.highest - counter
	if back >= 64 {
		return false
	}
	bit := uint64(1) << back
	if w.bitmap&bit != 0 {
		return false
	}
	w.bitmap |= bit
	return true
}

func putAddress(out []byte, a identity.Address) []byte {
	var buf [identity.AddressSize]byte
	a.PutBytes(buf[:])
	return append(out, buf[:]...)
}

func takeAddress(bs []byte) (identity.Address, []byte, error) {
	if len(bs) < identity.AddressSize {
		return 0, nil, ErrMalformed
	}
	return identity.AddressFromBytes(bs[:identity.AddressSize]), bs[identity.AddressSize:], nil
}

func encodeHeartbeat(load uint32, geoX, geoY int32) []byte {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], load)
	binary.BigEndian.PutUint32(buf[4:8], uint32(geoX))
	binary.BigEndian.PutUint32(buf[8:12], uint32(geoY))
	return buf[:]
}

func decodeHeartbeat(body []byte) (load uint32, geoX, geoY int32, err error) {
	if len(body) < 12 {
		return 0, 0, 0, ErrMalformed
	}
	load = binary.BigEndian.Uint32(body[0:4])
	geoX = int32(binary.BigEndian.Uint32(body[4:8]))
	geoY = int32(binary.BigEndian.Uint32(body[8:12]))
	return load, geoX, geoY, nil
}

func encodeOwnershipClaim(addr identity.Address, load uint32, geoX, geoY int32) []byte {
	out := putAddress(nil, addr)
	return append(out, encodeHeartbeat(load, geoX, geoY)...)
}

func decodeOwnershipClaim(body []byte) (addr identity.Address, load uint32, geoX, geoY int32, err error) {
	addr, rest, err := takeAddress(body)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	load, geoX, geoY, err = decodeHeartbeat(rest)
	return addr, load, geoX, geoY, err
}

func encodeRedirect(addr identity.Address, newOwner MemberID) []byte {
	out := putAddress(nil, addr)
	return append(out, byte(newOwner))
}

func decodeRedirect(body []byte) (addr identity.Address, newOwner MemberID, err error) {
	addr, rest, err := takeAddress(body)
	if err != nil || len(rest) < 1 {
		return 0, 0, ErrMalformed
	}
	return addr, MemberID(rest[0]), nil
}

func encodeRelay(addr identity.Address, payload []byte) []byte {
	out := putAddress(nil, addr)
	return append(out, payload...)
}

func decodeRelay(body []byte) (addr identity.Address, payload []byte, err error) {
	addr, rest, err := takeAddress(body)
	if err != nil {
		return 0, nil, err
	}
	return addr, rest, nil
}
