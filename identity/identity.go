package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	vcrypto "github.com/vlcore/engine/crypto"
)

var (
	ErrBadFormat       = errors.New("identity: malformed serialized identity")
	ErrNoPrivateKey    = errors.New("identity: operation requires a secret key")
	ErrPowFailed       = errors.New("identity: public key fails proof-of-work threshold")
	ErrAddressMismatch = errors.New("identity: address does not match public key")
	ErrReservedAddress = errors.New("identity: address is reserved")
)

// Identity is a node's long-lived cryptographic identity: an Ed25519
// signing keypair plus an independent Curve25519 agreement keypair (secret
// halves optional — e.g. for a peer we only know by its public halves) and
// the 40-bit Address derived from both public keys. Keeping the signing and
// agreement keys independent, rather than converting one into the other,
// means a compromised shared secret can never expose anything about the
// signing key.
type Identity struct {
	address   Address
	public    vcrypto.PublicKey
	secret    *vcrypto.PrivateKey
	agreePub  vcrypto.AgreementPublicKey
	agreePriv *vcrypto.AgreementPrivateKey
}

func keyMaterial(pub *vcrypto.PublicKey, agreePub *vcrypto.AgreementPublicKey) []byte {
	buf := make([]byte, 0, len(pub)+len(agreePub))
	buf = append(buf, pub[:]...)
	buf = append(buf, agreePub[:]...)
	return buf
}

// Generate grinds a fresh keypair pair until it satisfies both the
// proof-of-work threshold and a non-reserved address, per spec.md §4.1.
func Generate() (*Identity, error) {
	for {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, err
		}
		var vpub vcrypto.PublicKey
		copy(vpub[:], pub)

		var seed [32]byte
		if _, err := rand.Read(seed[:]); err != nil {
			return nil, err
		}
		agreePub, agreePriv := vcrypto.DeriveAgreementKeys(seed[:])

		if !vcrypto.SatisfiesProofOfWork(keyMaterial(&vpub, &agreePub)) {
			continue
		}
		digest := vcrypto.PowDigest(keyMaterial(&vpub, &agreePub))
		addr := addressFromDigest(&digest)
		if addr.IsReserved() {
			continue
		}

		var vpriv vcrypto.PrivateKey
		copy(vpriv[:], priv)
		return &Identity{
			address:   addr,
			public:    vpub,
			secret:    &vpriv,
			agreePub:  agreePub,
			agreePriv: &agreePriv,
		}, nil
	}
}

// Address is the 40-bit node address.
func (id *Identity) Address() Address { return id.address }

// PublicKey returns a copy of the Ed25519 public key.
func (id *Identity) PublicKey() vcrypto.PublicKey { return id.public }

// HasPrivateKey reports whether this Identity can sign and agree, i.e.
// whether it represents the local node rather than a remote peer.
func (id *Identity) HasPrivateKey() bool { return id.secret != nil }

// Sign signs message with the identity's secret key. Returns
// ErrNoPrivateKey if the identity was parsed public-only.
func (id *Identity) Sign(message []byte) (vcrypto.Signature, error) {
	if id.secret == nil {
		return vcrypto.Signature{}, ErrNoPrivateKey
	}
	return id.secret.Sign(message), nil
}

// Verify checks a signature against this identity's public key.
func (id *Identity) Verify(message []byte, sig *vcrypto.Signature) bool {
	return id.public.Verify(message, sig)
}

// Agree computes the X25519 shared secret between this identity's private
// agreement key and another identity's public agreement key. The local
// identity must carry its private half; the other identity only needs its
// public half, which every parsed Identity carries.
func (id *Identity) Agree(other *Identity) ([vcrypto.SharedKeySize]byte, error) {
	if id.agreePriv == nil {
		return [vcrypto.SharedKeySize]byte{}, ErrNoPrivateKey
	}
	return vcrypto.Agree(id.agreePriv, &other.agreePub)
}

// AgreementPublicKey exposes the X25519 public half, used by peers to
// agree a shared secret with this identity.
func (id *Identity) AgreementPublicKey() vcrypto.AgreementPublicKey { return id.agreePub }

// Serialize renders the identity as
// "<address>:<publicKeyHex>:<agreePubHex>[:<secretKeyHex>:<agreePrivHex>]",
// following the teacher's hex-string address idiom (types/addr.go's
// hex.EncodeToString) generalized to a multi-field, multi-key record.
func (id *Identity) Serialize(includeSecret bool) string {
	var sb strings.Builder
	sb.WriteString(id.address.String())
	sb.WriteByte(':')
	sb.WriteString(hex.EncodeToString(id.public[:]))
	sb.WriteByte(':')
	sb.WriteString(hex.EncodeToString(id.agreePub[:]))
	if includeSecret && id.secret != nil && id.agreePriv != nil {
		sb.WriteByte(':')
		sb.WriteString(hex.EncodeToString(id.secret[:]))
		sb.WriteByte(':')
		sb.WriteString(hex.EncodeToString(id.agreePriv[:]))
	}
	return sb.String()
}

// Parse reconstructs an Identity from Serialize's output, validating that
// the embedded address actually matches the embedded public keys and that
// those keys still satisfy the proof-of-work threshold.
func Parse(s string) (*Identity, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 3 && len(fields) != 5 {
		return nil, ErrBadFormat
	}
	addrBytes, err := hex.DecodeString(fields[0])
	if err != nil || len(addrBytes) != AddressSize {
		return nil, ErrBadFormat
	}
	addr := AddressFromBytes(addrBytes)

	pubBytes, err := hex.DecodeString(fields[1])
	if err != nil || len(pubBytes) != vcrypto.PublicKeySize {
		return nil, ErrBadFormat
	}
	var vpub vcrypto.PublicKey
	copy(vpub[:], pubBytes)

	agreePubBytes, err := hex.DecodeString(fields[2])
	if err != nil || len(agreePubBytes) != vcrypto.AgreementSize {
		return nil, ErrBadFormat
	}
	var agreePub vcrypto.AgreementPublicKey
	copy(agreePub[:], agreePubBytes)

	if addr.IsReserved() {
		return nil, ErrReservedAddress
	}
	if !vcrypto.SatisfiesProofOfWork(keyMaterial(&vpub, &agreePub)) {
		return nil, ErrPowFailed
	}
	digest := vcrypto.PowDigest(keyMaterial(&vpub, &agreePub))
	if addressFromDigest(&digest) != addr {
		return nil, ErrAddressMismatch
	}

	id := &Identity{address: addr, public: vpub, agreePub: agreePub}
	if len(fields) == 5 {
		secBytes, err := hex.DecodeString(fields[3])
		if err != nil || len(secBytes) != vcrypto.PrivateKeySize {
			return nil, ErrBadFormat
		}
		var vpriv vcrypto.PrivateKey
		copy(vpriv[:], secBytes)
		id.secret = &vpriv

		agreePrivBytes, err := hex.DecodeString(fields[4])
		if err != nil || len(agreePrivBytes) != vcrypto.AgreementSize {
			return nil, ErrBadFormat
		}
		var agreePriv vcrypto.AgreementPrivateKey
		copy(agreePriv[:], agreePrivBytes)
		id.agreePriv = &agreePriv
	}
	return id, nil
}
