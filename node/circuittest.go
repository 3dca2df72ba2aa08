package node

import (
	"encoding/binary"
	"errors"

	"github.com/vlcore/engine/identity"
)

// MaxCircuitTestHops and MaxCircuitTestBreadth are spec.md §6's circuit
// test bounds: "max circuit-test hops: 512, breadth per hop: 256". This
// module implements a linear hop chain (breadth 1); MaxCircuitTestBreadth
// is retained as the documented ceiling a fan-out implementation would
// enforce per hop.
const (
	MaxCircuitTestHops     = 512
	MaxCircuitTestBreadth  = 256
)

var errCircuitTestMalformed = errors.New("node: malformed circuit test payload")

// CircuitTest describes a hop-by-hop reachability probe (spec.md §6:
// circuitTestBegin/circuitTestEnd), supplementing the distilled spec with
// the original's circuit-test diagnostic feature.
type CircuitTest struct {
	ID   uint64
	Hops []identity.Address
}

// CircuitTestReportFunc is invoked once per hop that receives and
// acknowledges a circuit test, in the order reports arrive (not
// necessarily hop order, since hops report directly to the originator).
type CircuitTestReportFunc func(testID uint64, hop identity.Address)

func encodeCircuitTest(testID uint64, originator identity.Address, remaining []identity.Address) []byte {
	out := make([]byte, 0, 8+identity.AddressSize+2+len(remaining)*identity.AddressSize)
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], testID)
	out = append(out, idBuf[:]...)
	var addrBuf [identity.AddressSize]byte
	originator.PutBytes(addrBuf[:])
	out = append(out, addrBuf[:]...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(remaining)))
	for _, a := range remaining {
		a.PutBytes(addrBuf[:])
		out = append(out, addrBuf[:]...)
	}
	return out
}

func decodeCircuitTest(payload []byte) (testID uint64, originator identity.Address, remaining []identity.Address, err error) {
	if len(payload) < 8+identity.AddressSize+2 {
		return 0, 0, nil, errCircuitTestMalformed
	}
	testID = binary.BigEndian.Uint64(payload[:8])
	rest := payload[8:]
	originator = identity.AddressFromBytes(rest[:identity.AddressSize])
	rest = rest[identity.AddressSize:]
	n := int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]
	for i := 0; i < n; i++ {
		if len(rest) < identity.AddressSize {
			return 0, 0, nil, errCircuitTestMalformed
		}
		remaining = append(remaining, identity.AddressFromBytes(rest[:identity.AddressSize]))
		rest = rest[identity.AddressSize:]
	}
	return testID, originator, remaining, nil
}

func encodeCircuitTestReport(testID uint64, hop identity.Address) []byte {
	out := make([]byte, 0, 8+identity.AddressSize)
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], testID)
	out = append(out, idBuf[:]...)
	var addrBuf [identity.AddressSize]byte
	hop.PutBytes(addrBuf[:])
	return append(out, addrBuf[:]...)
}

func decodeCircuitTestReport(payload []byte) (testID uint64, hop identity.Address, err error) {
	if len(payload) < 8+identity.AddressSize {
		return 0, 0, errCircuitTestMalformed
	}
	testID = binary.BigEndian.Uint64(payload[:8])
	hop = identity.AddressFromBytes(payload[8 : 8+identity.AddressSize])
	return testID, hop, nil
}
