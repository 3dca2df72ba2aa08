// Package proto implements the VL1 wire frame: the fixed packet header,
// its HMAC/encryption envelope, and the fragmentation layout described in
// spec.md §4.2 and §6. The byte-budget-conscious helper style (wireChop*
// in the teacher) is carried forward as explicit, bounds-checked decode
// steps rather than a generic reflection-based codec.
package proto

import (
	"encoding/binary"
	"errors"

	"github.com/vlcore/engine/identity"
)

// Header byte layout (big-endian), per spec.md §6:
//
//	[packetID:8][dest:5][src:5][flags(3b)|hops(3b)|cipher(2b)][MAC:8][verb:1]
const (
	HeaderSize      = 8 + identity.AddressSize + identity.AddressSize + 1 + 8
	VerbOffset      = HeaderSize
	MinPacketSize   = HeaderSize + 1 // header + verb byte, possibly empty payload
	MaxHops         = 7              // 3 bits
	HeadPayloadMTU  = 1414
	TailFragmentMTU = 1400
)

var (
	ErrTooShort        = errors.New("proto: packet shorter than header")
	ErrPayloadTooLarge = errors.New("proto: payload exceeds wire budget")
)

// CipherSuite occupies the low 2 bits of the flags/hops/cipher byte.
type CipherSuite byte

const (
	CipherNone          CipherSuite = 0 // cleartext, still HMACed; HELLO and ERROR only
	CipherSalsaPoly1305 CipherSuite = 1 // Salsa20/12 + Poly1305, the default
)

// FlagFragmented, the low bit of the 3-bit Flags field, tells the
// receiver that this head packet was split and tail Fragments follow
// under the same PacketID (spec.md §4.2).
const FlagFragmented byte = 0x1

// Header is the decoded, mutable form of a VL1 packet's fixed prefix.
type Header struct {
	PacketID uint64
	Dest     identity.Address
	Source   identity.Address
	Flags    byte // 3 bits; bit 0 is FlagFragmented, the rest unused
	Hops     byte // 3 bits; relays increment this and must leave the MAC untouched
	Cipher   CipherSuite
	MAC      [8]byte
	Verb     byte
}

func packFlagsHopsCipher(flags, hops byte, cipher CipherSuite) byte {
	return (flags&0x7)<<5 | (hops&0x7)<<2 | byte(cipher)&0x3
}

func unpackFlagsHopsCipher(b byte) (flags, hops byte, cipher CipherSuite) {
	flags = (b >> 5) & 0x7
	hops = (b >> 2) & 0x7
	cipher = CipherSuite(b & 0x3)
	return
}

// EncodeHeader writes the fixed header + verb byte to out, which must be at
// least HeaderSize+1 bytes. Returns the slice following the verb byte
// (where the caller appends payload).
func (h *Header) EncodeHeader(out []byte) []byte {
	var buf [HeaderSize + 1]byte
	binary.BigEndian.PutUint64(buf[0:8], h.PacketID)
	h.Dest.PutBytes(buf[8:13])
	h.Source.PutBytes(buf[13:18])
	buf[18] = packFlagsHopsCipher(h.Flags, h.Hops, h.Cipher)
	copy(buf[19:27], h.MAC[:])
	buf[27] = h.Verb
	return append(out, buf[:]...)
}

// DecodeHeader parses the fixed header + verb byte from the front of bs,
// returning the remaining payload bytes.
func DecodeHeader(h *Header, bs []byte) (payload []byte, err error) {
	if len(bs) < MinPacketSize {
		return nil, ErrTooShort
	}
	h.PacketID = binary.BigEndian.Uint64(bs[0:8])
	h.Dest = identity.AddressFromBytes(bs[8:13])
	h.Source = identity.AddressFromBytes(bs[13:18])
	h.Flags, h.Hops, h.Cipher = unpackFlagsHopsCipher(bs[18])
	copy(h.MAC[:], bs[19:27])
	h.Verb = bs[27]
	return bs[28:], nil
}

// MACCanonicalHeader writes the bytes the MAC is computed over: the header
// with the MAC field and hops zeroed (hops is mutated in place by each
// relay, so it must never be covered by the MAC; the MAC field is of
// course excluded from its own input).
func (h *Header) MACCanonicalHeader(out []byte) []byte {
	var buf [HeaderSize - 8 + 1]byte // header minus the 8-byte MAC field, plus the verb byte
	binary.BigEndian.PutUint64(buf[0:8], h.PacketID)
	h.Dest.PutBytes(buf[8:13])
	h.Source.PutBytes(buf[13:18])
	buf[18] = packFlagsHopsCipher(h.Flags, 0, h.Cipher)
	buf[19] = h.Verb
	return append(out, buf[:]...)
}
