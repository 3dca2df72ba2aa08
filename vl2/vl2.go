// Package vl2 is the virtual-Ethernet membership layer on top of vl1:
// per-network join/leave state, the certificate-of-membership (COM)
// compatibility check (Network.AdmitFrame; the node facade does not call
// it, so inbound frames are not filtered by COM), and the controller
// round trip that issues a NetworkConfig. It generalizes the teacher's
// `network/config.go` functional-options shape (there, per-connection
// tunables; here, per-network tunables issued by a controller) to
// spec.md §4.4's membership state machine.
package vl2

import "github.com/vlcore/engine/identity"

// NetworkID is the 64-bit virtual network identifier. For a private
// network, the top 40 bits are the controller's node Address (spec.md
// §4.4: "the controller is the node whose address equals the top 40
// bits of the network ID").
type NetworkID uint64

// ControllerAddress derives the controlling node's Address from the
// network ID.
func (n NetworkID) ControllerAddress() identity.Address {
	return identity.Address(uint64(n) >> 24)
}

// Status is the per-network membership state machine (spec.md §4.4).
type Status int

const (
	StatusRequestingConfiguration Status = iota
	StatusOK
	StatusAccessDenied
	StatusNotFound
	StatusPortError
	StatusClientTooOld
)

func (s Status) String() string {
	switch s {
	case StatusRequestingConfiguration:
		return "REQUESTING_CONFIGURATION"
	case StatusOK:
		return "OK"
	case StatusAccessDenied:
		return "ACCESS_DENIED"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusPortError:
		return "PORT_ERROR"
	case StatusClientTooOld:
		return "CLIENT_TOO_OLD"
	default:
		return "UNKNOWN"
	}
}

// PortEvent is delivered to the host's port-config callback as a network's
// membership status changes (spec.md §4.4/§6).
type PortEvent int

const (
	PortUp PortEvent = iota
	PortConfigUpdate
	PortDown
	PortDestroy
)

func (e PortEvent) String() string {
	switch e {
	case PortUp:
		return "UP"
	case PortConfigUpdate:
		return "CONFIG_UPDATE"
	case PortDown:
		return "DOWN"
	case PortDestroy:
		return "DESTROY"
	default:
		return "UNKNOWN"
	}
}
