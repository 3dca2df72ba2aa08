package proto

// Verb identifies the payload format carried by a packet, per spec.md §4.3.
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
	// VerbWorldUpdate carries a newer signed world.World blob; see
	// SPEC_FULL.md §4 NEW (the distillation's verb list omitted it even
	// though §9 of spec.md refers to it by name).
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
		return "UNKNOWN_VERB"
	}
}

// ErrorCode is carried as the first byte of an ERROR verb's payload.
type ErrorCode byte

const (
	ErrorNeedMembershipCert ErrorCode = iota + 1
	ErrorObjNotFound
	ErrorIdentityCollision
	ErrorNoSuchNetwork
	ErrorUnsupportedOperation
)
