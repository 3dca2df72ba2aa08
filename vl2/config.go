package vl2

import "github.com/vlcore/engine/identity"

// NetworkConfig is what a controller issues to a member in response to a
// NETWORK_CONFIG_REQUEST: the tunables spec.md §4.4/§6 says a joined
// network carries (MTU, broadcast, multicast limit, static assignment, COM).
type NetworkConfig struct {
	NetworkID         NetworkID
	Revision          uint64
	IssuedTo          identity.Address
	MAC               [6]byte
	Private           bool
	EnableBroadcast   bool
	MTU               int
	MulticastLimit    int
	AssignedAddresses []string // host-opaque CIDR strings; this module never parses them
	Routes            []string
	COM               *COM
}

// DefaultMTU and DefaultMulticastLimit mirror the constants recorded in
// SPEC_FULL.md §4 NEW from original_source/include/ZeroTierOne.h.
const (
	DefaultMTU            = 2800
	DefaultMulticastLimit = 4096
)
