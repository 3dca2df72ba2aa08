// Package multicast implements spec.md §4.5's gossiped multicast layer on
// top of vl1/vl2: per-(network, group) known-subscriber sets refreshed by
// MULTICAST_LIKE, bounded fanout, MULTICAST_GATHER when too few
// subscribers are known, and the ARP-to-ADI mapping used to shard
// multicast traffic by target IPv4 address. It generalizes the teacher's
// DHT bootstrap/announce idiom (network/dhtree.go: "periodically
// re-announce a set of known facts to peers") from tree membership facts
// to multicast-group subscriptions.
package multicast

import (
	"encoding/binary"

	"github.com/vlcore/engine/identity"
)

// Group identifies a multicast group on a network: an Ethernet multicast
// MAC plus an application-defined discriminator (ADI). spec.md §4.5: "ARP
// -> multicast mapping with ADI=target IPv4" is the ADI's canonical use.
type Group struct {
	MAC [6]byte
	ADI uint32
}

// ARPGroup derives the Group ZeroTier-style ARP resolution multicasts to:
// the reserved ARP multicast MAC with the ADI set to the target IPv4
// address, so a /24 of hosts doesn't all share one noisy group.
func ARPGroup(targetIPv4 uint32) Group {
	return Group{MAC: arpMulticastMAC, ADI: targetIPv4}
}

// arpMulticastMAC is the reserved broadcast-substitute MAC ARPGroup keys
// its ADI-sharded groups under.
var arpMulticastMAC = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func (g Group) key() groupKey {
	var k groupKey
	copy(k.mac[:], g.MAC[:])
	binary.BigEndian.PutUint32(k.adi[:], g.ADI)
	return k
}

type groupKey struct {
	mac [6]byte
	adi [4]byte
}

// subscriberKey identifies one (network, group) pair's subscriber table.
type subscriberKey struct {
	network uint64
	group   groupKey
}

// Subscriber is one known subscriber to a group, with the last time it
// was seen (via a direct MULTICAST_LIKE or a gathered report).
type Subscriber struct {
	Address  identity.Address
	LastSeen int64 // unix nanoseconds; avoids importing time into hot map values
}
