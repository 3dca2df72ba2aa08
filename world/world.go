// Package world models the embedded, signed list of root servers
// (spec.md §3's World entity, §9's "ship as a byte constant whose
// signature is verified at load").
package world

import (
	"encoding/binary"
	"errors"

	vcrypto "github.com/vlcore/engine/crypto"
	"github.com/vlcore/engine/identity"
)

var (
	ErrBadSignature    = errors.New("world: signature does not verify under the root-of-trust key")
	ErrStaleTimestamp  = errors.New("world: timestamp is not newer than the current world")
	ErrMismatchedWorld = errors.New("world: worldId does not match")
)

// RootEndpointSet is one root node's identity plus the network endpoints
// (host:port strings, which node.LoadWorld resolves as UDP addresses) it
// can be reached at.
type RootEndpointSet struct {
	Identity  *identity.Identity
	Endpoints []string
}

// World is the signed, timestamped root list.
type World struct {
	ID        uint64
	Timestamp uint64
	Roots     []RootEndpointSet
}

// signingMaterial serializes the fields covered by the root-of-trust
// signature: worldId, timestamp, and each root's public key + endpoint
// list. Root identities are bound by public key, so the signature also
// pins which keys are trusted as roots.
func signingMaterial(w *World) []byte {
	buf := make([]byte, 0, 16+64*len(w.Roots))
	var idBuf, tsBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], w.ID)
	binary.BigEndian.PutUint64(tsBuf[:], w.Timestamp)
	buf = append(buf, idBuf[:]...)
	buf = append(buf, tsBuf[:]...)
	for _, r := range w.Roots {
		pub := r.Identity.PublicKey()
		buf = append(buf, pub[:]...)
		for _, ep := range r.Endpoints {
			buf = append(buf, []byte(ep)...)
			buf = append(buf, 0)
		}
	}
	return buf
}

// Sign produces the root-of-trust signature over w. rootOfTrust must carry
// its private key; this is a build-time/offline operation, never called by
// a running node.
func Sign(w *World, rootOfTrust *identity.Identity) (vcrypto.Signature, error) {
	return rootOfTrust.Sign(signingMaterial(w))
}

// Verify checks w against a root-of-trust signature, and that its
// timestamp is monotonically at least as new as current (nil current
// always passes, for first load). Per spec.md §3: "Updatable only by a
// world signed with ≥ previous timestamp."
func Verify(w *World, sig *vcrypto.Signature, rootOfTrust *identity.Identity, current *World) error {
	if !rootOfTrust.Verify(signingMaterial(w), sig) {
		return ErrBadSignature
	}
	if current != nil {
		if current.ID != w.ID {
			return ErrMismatchedWorld
		}
		if w.Timestamp < current.Timestamp {
			return ErrStaleTimestamp
		}
	}
	return nil
}
