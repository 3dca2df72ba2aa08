package identity

import (
	"encoding/binary"
	"encoding/hex"
)

// AddressSize is the width, in bytes, of a node Address: 40 bits packed
// into the low 5 bytes of a uint64.
const AddressSize = 5

// Address is the 40-bit identifier derived from an Identity's public key.
// It implements net.Addr so it can be threaded through the same call
// shapes the teacher uses for its ed25519-keyed Addr (types/addr.go),
// generalized here to the derived, shorter address this protocol uses
// instead of the raw public key.
type Address uint64

// Reserved addresses: all-zero and all-ones are never valid node addresses.
const (
	AddressReservedZero Address = 0
	AddressReservedAll  Address = 0xffffffffff
)

func (a Address) IsReserved() bool {
	return a == AddressReservedZero || a == AddressReservedAll
}

// Network returns a constant string, matching net.Addr; unused beyond
// interface satisfaction.
func (a Address) Network() string { return "vl1.address" }

func (a Address) String() string {
	var b [AddressSize]byte
	a.PutBytes(b[:])
	return hex.EncodeToString(b[:])
}

// PutBytes writes the address's 5 big-endian bytes into out, which must be
// at least AddressSize long.
func (a Address) PutBytes(out []byte) {
	out[0] = byte(a >> 32)
	out[1] = byte(a >> 24)
	out[2] = byte(a >> 16)
	out[3] = byte(a >> 8)
	out[4] = byte(a)
}

// AddressFromBytes reads a 40-bit address from a 5-byte big-endian buffer.
func AddressFromBytes(b []byte) Address {
	var buf [8]byte
	copy(buf[3:], b[:AddressSize])
	return Address(binary.BigEndian.Uint64(buf[:]))
}

// addressFromDigest derives the 40-bit address from the low 5 bytes of the
// identity's proof-of-work digest (see crypto.PowDigest). This is the
// "address == low40(hash(publicKey))" invariant from spec.md §8.
func addressFromDigest(digest *[64]byte) Address {
	return AddressFromBytes(digest[59:64])
}
