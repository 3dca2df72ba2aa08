package node

import "net"

// TrustLevel qualifies how much a locally-configured interface address is
// trusted, per spec.md §6. It is recorded with each address; path
// selection and relaying do not consult it.
type TrustLevel int

const (
	TrustNormal   TrustLevel = 0
	TrustPrivacy  TrustLevel = 10
	TrustUltimate TrustLevel = 20
)

// LocalInterfaceAddress is one address the host has told the node about
// via addLocalInterfaceAddress, used as a PUSH_DIRECT_PATHS candidate.
type LocalInterfaceAddress struct {
	Addr   net.Addr
	Metric int
	Trust  TrustLevel
}
