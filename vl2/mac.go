package vl2

import (
	"crypto/sha256"

	"github.com/vlcore/engine/identity"
)

// DeriveMAC computes the virtual Ethernet MAC a member deterministically
// receives on a given network, per spec.md §4.4: "MAC derived
// deterministically from (nodeAddress, networkId)". Every node must derive
// the same MAC for the same (address, network) pair without communicating,
// which rules out crypto.DictHasher (hash/maphash's seed is deliberately
// randomized per process, so two nodes would disagree); sha256 is used
// instead purely because it is a fixed, process-independent digest, not
// for any cryptographic property this derivation needs.
func DeriveMAC(addr identity.Address, nwid NetworkID) [6]byte {
	var in [5 + 8]byte
	addr.PutBytes(in[:5])
	for i := 0; i < 8; i++ {
		in[5+i] = byte(nwid >> (8 * i))
	}
	digest := sha256.Sum256(in[:])
	var mac [6]byte
	copy(mac[:], digest[:6])
	// Set the locally-administered bit and clear the multicast bit, as
	// ZeroTier-derived MACs do, so the address is never confused with a
	// vendor-assigned or multicast MAC.
	mac[0] = (mac[0] &^ 0x01) | 0x02
	return mac
}
