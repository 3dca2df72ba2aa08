package crypto

import (
	"crypto/ed25519"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/poly1305"
)

// Sizes of the primitives wired into the wire protocol and identity system.
const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
	SignatureSize  = ed25519.SignatureSize
	AgreementSize  = curve25519.ScalarSize
	SharedKeySize  = 32
	MACSize        = poly1305.TagSize
)

// PublicKey and PrivateKey are the signing keypair (Ed25519). Addresses are
// derived from the public key; see the identity package.
type PublicKey [PublicKeySize]byte
type PrivateKey [PrivateKeySize]byte
type Signature [SignatureSize]byte

func (priv *PrivateKey) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(priv[:]), message))
	return sig
}

func (pub *PublicKey) Verify(message []byte, sig *Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, sig[:])
}

// AgreementPrivateKey and AgreementPublicKey are a Curve25519 keypair, used
// only for X25519 shared-secret agreement between peers.
type AgreementPrivateKey [AgreementSize]byte
type AgreementPublicKey [AgreementSize]byte

// DeriveAgreementKeys turns a 32-byte seed into a Curve25519 agreement
// keypair. identity.Generate draws this seed at random, independently of
// the Ed25519 signing key, so the agreement keys are separate from the
// signing keys and a compromised shared secret never reveals anything
// about the signing key.
func DeriveAgreementKeys(seed []byte) (pub AgreementPublicKey, priv AgreementPrivateKey) {
	var clamped [32]byte
	copy(clamped[:], seed)
	// Standard X25519 clamping.
	clamped[0] &= 248
	clamped[31] &= 127
	clamped[31] |= 64
	priv = AgreementPrivateKey(clamped)
	pubBytes, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		panic("curve25519: basepoint multiplication failed")
	}
	copy(pub[:], pubBytes)
	return
}

// Agree computes the X25519 shared secret between a local private agreement
// key and a remote public agreement key.
func Agree(priv *AgreementPrivateKey, pub *AgreementPublicKey) (shared [SharedKeySize]byte, err error) {
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return shared, err
	}
	copy(shared[:], out)
	return shared, nil
}

// Poly1305Sum computes a one-time MAC. Callers must never reuse the same
// (key, message) pair with a different message under the same key stream
// position; the wire codec derives a fresh one-time key per packet from the
// per-peer shared secret and the packet ID.
func Poly1305Sum(key *[32]byte, message []byte) (tag [MACSize]byte) {
	poly1305.Sum(&tag, message, key)
	return
}

func Poly1305Verify(key *[32]byte, message []byte, tag *[MACSize]byte) bool {
	return poly1305.Verify(tag, message, key)
}
