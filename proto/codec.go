package proto

import (
	"errors"

	vcrypto "github.com/vlcore/engine/crypto"
)

// ErrAuthFailed is returned by Open when the MAC does not verify. Per
// spec.md §7, a MAC failure is always a silent drop at the caller; this
// error exists only so the caller (vl1) can choose to count it for
// diagnostics without ever producing a reply.
var ErrAuthFailed = errors.New("proto: MAC verification failed")

// Seal encrypts (if cipher is CipherSalsaPoly1305) and authenticates
// plaintext under sharedKey, appending the header and sealed payload to
// out. h.MAC is filled in as a side effect. h.PacketID must already be set
// to a fresh, random value: it doubles as the Salsa20/12 block counter
// seed (spec.md §4.2 — "the low 8 bytes of packetID seed the stream
// cipher counter"), so packet IDs must never repeat under the same key.
//
// The one-time Poly1305 key is carved from keystream block h.PacketID
// (never used to encrypt anything), and payload encryption starts at
// block h.PacketID+1 — the same "reserve block zero for the MAC key"
// idiom NaCl's secretbox uses, adapted to the reduced-round cipher.
func Seal(h *Header, plaintext []byte, sharedKey *[32]byte, out []byte) []byte {
	var ciphertext []byte
	switch h.Cipher {
	case CipherNone:
		ciphertext = plaintext
	case CipherSalsaPoly1305:
		ciphertext = make([]byte, len(plaintext))
		vcrypto.Salsa2012XORKeyStream(ciphertext, plaintext, 0, h.PacketID+1, sharedKey)
	default:
		ciphertext = plaintext
	}

	var macKeyBlock [64]byte
	vcrypto.Salsa2012Block(&macKeyBlock, sharedKey, 0, h.PacketID)
	var macKey [32]byte
	copy(macKey[:], macKeyBlock[:32])

	canonical := h.MACCanonicalHeader(nil)
	macInput := append(canonical, ciphertext...)
	tag := vcrypto.Poly1305Sum(&macKey, macInput)
	copy(h.MAC[:], tag[:8])

	out = h.EncodeHeader(out)
	return append(out, ciphertext...)
}

// Open verifies and (if needed) decrypts a packet already split into
// header and payload-after-verb by DecodeHeader. On success it returns the
// plaintext; on MAC failure it returns ErrAuthFailed and the caller must
// drop the packet silently (no reply — spec.md §7's anti-amplification
// rule).
func Open(h *Header, ciphertext []byte, sharedKey *[32]byte) (plaintext []byte, err error) {
	var macKeyBlock [64]byte
	vcrypto.Salsa2012Block(&macKeyBlock, sharedKey, 0, h.PacketID)
	var macKey [32]byte
	copy(macKey[:], macKeyBlock[:32])

	canonical := h.MACCanonicalHeader(nil)
	macInput := append(canonical, ciphertext...)
	var wantTag [8]byte
	copy(wantTag[:], h.MAC[:])
	fullTag := vcrypto.Poly1305Sum(&macKey, macInput)
	if !constantTimeEqual(fullTag[:8], wantTag[:]) {
		return nil, ErrAuthFailed
	}

	switch h.Cipher {
	case CipherNone:
		return ciphertext, nil
	case CipherSalsaPoly1305:
		plaintext = make([]byte, len(ciphertext))
		vcrypto.Salsa2012XORKeyStream(plaintext, ciphertext, 0, h.PacketID+1, sharedKey)
		return plaintext, nil
	default:
		return ciphertext, nil
	}
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
