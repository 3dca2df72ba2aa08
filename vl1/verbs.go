// Package vl1 is the switch: inbound verb dispatch, outbound
// send/fragment/relay, WHOIS, NAT-traversal rendezvous, and circuit
// testing. It is the module's realization of spec.md §4's "packet pump",
// generalizing the teacher's network/router.go dispatch loop and
// network/peers.go's per-peer `_handlePacket` switch from the teacher's
// fixed tree/DHT verb set to the VL1 wire verbs.
package vl1

// Verb identifies the payload format following the 27-byte header
// (spec.md §4.2/§6).
type Verb byte

const (
	VerbHello Verb = iota + 1
	VerbOK
	VerbError
	VerbWhois
	VerbRendezvous
	VerbFrame
	VerbExtFrame
	VerbMulticastLike
	VerbMulticastGather
	VerbMulticastGatherReply
	VerbMulticastFrame
	VerbNetworkConfigRequest
	VerbNetworkConfigRefresh
	VerbEcho
	VerbPushDirectPaths
	VerbCircuitTest
	VerbCircuitTestReport
	VerbWorldUpdate
)

func (v Verb) String() string {
	switch v {
	case VerbHello:
		return "HELLO"
	case VerbOK:
		return "OK"
	case VerbError:
		return "ERROR"
	case VerbWhois:
		return "WHOIS"
	case VerbRendezvous:
		return "RENDEZVOUS"
	case VerbFrame:
		return "FRAME"
	case VerbExtFrame:
		return "EXT_FRAME"
	case VerbMulticastLike:
		return "MULTICAST_LIKE"
	case VerbMulticastGather:
		return "MULTICAST_GATHER"
	case VerbMulticastGatherReply:
		return "MULTICAST_GATHER_REPLY"
	case VerbMulticastFrame:
		return "MULTICAST_FRAME"
	case VerbNetworkConfigRequest:
		return "NETWORK_CONFIG_REQUEST"
	case VerbNetworkConfigRefresh:
		return "NETWORK_CONFIG_REFRESH"
	case VerbEcho:
		return "ECHO"
	case VerbPushDirectPaths:
		return "PUSH_DIRECT_PATHS"
	case VerbCircuitTest:
		return "CIRCUIT_TEST"
	case VerbCircuitTestReport:
		return "CIRCUIT_TEST_REPORT"
	case VerbWorldUpdate:
		return "WORLD_UPDATE"
	default:
		return "UNKNOWN"
	}
}

// ErrorCode is the payload of a VerbError packet (spec.md §7: "Received
// ERROR verbs ... update state ... but never unwind the caller").
type ErrorCode byte

const (
	ErrorNeedMembershipCert ErrorCode = iota + 1
	ErrorObjNotFound
	ErrorIdentityCollision
	ErrorNoSuchNetwork
	ErrorUnsupportedOperation
)
