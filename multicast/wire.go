package multicast

import (
	"encoding/binary"
	"errors"

	"github.com/vlcore/engine/identity"
)

var ErrMalformed = errors.New("multicast: malformed wire payload")

const groupWireSize = 8 + 6 + 4 // networkID + MAC + ADI

func putNetworkAndGroup(out []byte, networkID uint64, g Group) []byte {
	var buf [groupWireSize]byte
	binary.BigEndian.PutUint64(buf[0:8], networkID)
	copy(buf[8:14], g.MAC[:])
	binary.BigEndian.PutUint32(buf[14:18], g.ADI)
	return append(out, buf[:]...)
}

func takeNetworkAndGroup(bs []byte) (networkID uint64, g Group, rest []byte, err error) {
	if len(bs) < groupWireSize {
		return 0, Group{}, nil, ErrMalformed
	}
	networkID = binary.BigEndian.Uint64(bs[0:8])
	copy(g.MAC[:], bs[8:14])
	g.ADI = binary.BigEndian.Uint32(bs[14:18])
	return networkID, g, bs[groupWireSize:], nil
}

// EncodeLike builds a MULTICAST_LIKE payload announcing the sender's
// subscription to (networkID, g).
func EncodeLike(networkID uint64, g Group) []byte {
	return putNetworkAndGroup(nil, networkID, g)
}

// DecodeLike parses a MULTICAST_LIKE payload.
func DecodeLike(payload []byte) (networkID uint64, g Group, err error) {
	networkID, g, _, err = takeNetworkAndGroup(payload)
	return
}

// EncodeGather builds a MULTICAST_GATHER payload requesting up to limit
// known subscribers of (networkID, g) from an upstream peer.
func EncodeGather(networkID uint64, g Group, limit uint16) []byte {
	out := putNetworkAndGroup(nil, networkID, g)
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], limit)
	return append(out, l[:]...)
}

// DecodeGather parses a MULTICAST_GATHER payload.
func DecodeGather(payload []byte) (networkID uint64, g Group, limit uint16, err error) {
	networkID, g, rest, err := takeNetworkAndGroup(payload)
	if err != nil {
		return 0, Group{}, 0, err
	}
	if len(rest) < 2 {
		return 0, Group{}, 0, ErrMalformed
	}
	limit = binary.BigEndian.Uint16(rest[:2])
	return networkID, g, limit, nil
}

// EncodeGatherReply serializes a set of known subscriber addresses in
// reply to a MULTICAST_GATHER.
func EncodeGatherReply(networkID uint64, g Group, subs []identity.Address) []byte {
	out := putNetworkAndGroup(nil, networkID, g)
	out = append(out, byte(len(subs)))
	for _, a := range subs {
		var buf [identity.AddressSize]byte
		a.PutBytes(buf[:])
		out = append(out, buf[:]...)
	}
	return out
}

// DecodeGatherReply parses a gather reply.
func DecodeGatherReply(payload []byte) (networkID uint64, g Group, subs []identity.Address, err error) {
	networkID, g, rest, err := takeNetworkAndGroup(payload)
	if err != nil {
		return 0, Group{}, nil, err
	}
	if len(rest) < 1 {
		return 0, Group{}, nil, ErrMalformed
	}
	n := int(rest[0])
	rest = rest[1:]
	for i := 0; i < n; i++ {
		if len(rest) < identity.AddressSize {
			return 0, Group{}, nil, ErrMalformed
		}
		subs = append(subs, identity.AddressFromBytes(rest[:identity.AddressSize]))
		rest = rest[identity.AddressSize:]
	}
	return networkID, g, subs, nil
}

// EncodeFrame wraps an Ethernet frame for MULTICAST_FRAME delivery.
func EncodeFrame(networkID uint64, g Group, frame []byte) []byte {
	out := putNetworkAndGroup(nil, networkID, g)
	return append(out, frame...)
}

// DecodeFrame parses a MULTICAST_FRAME payload.
func DecodeFrame(payload []byte) (networkID uint64, g Group, frame []byte, err error) {
	networkID, g, rest, err := takeNetworkAndGroup(payload)
	if err != nil {
		return 0, Group{}, nil, err
	}
	return networkID, g, rest, nil
}
