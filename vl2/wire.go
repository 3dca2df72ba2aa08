package vl2

import (
	"encoding/binary"
	"errors"

	"github.com/vlcore/engine/identity"
)

var ErrMalformed = errors.New("vl2: malformed wire payload")

func putString(out []byte, s string) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	out = append(out, l[:]...)
	return append(out, s...)
}

func takeString(bs []byte) (s string, rest []byte, err error) {
	if len(bs) < 2 {
		return "", nil, ErrMalformed
	}
	n := int(binary.BigEndian.Uint16(bs[:2]))
	bs = bs[2:]
	if len(bs) < n {
		return "", nil, ErrMalformed
	}
	return string(bs[:n]), bs[n:], nil
}

// EncodeConfigRequest builds a NETWORK_CONFIG_REQUEST payload: the network
// ID followed by the requester's metadata dictionary (spec.md §4.4's
// "NETWORK_CONFIG_REQUEST metadata round-trip").
func EncodeConfigRequest(nwid NetworkID, metadata map[string]string) []byte {
	out := make([]byte, 0, 8+2)
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], uint64(nwid))
	out = append(out, idBuf[:]...)
	var cnt [2]byte
	binary.BigEndian.PutUint16(cnt[:], uint16(len(metadata)))
	out = append(out, cnt[:]...)
	for k, v := range metadata {
		out = putString(out, k)
		out = putString(out, v)
	}
	return out
}

func DecodeConfigRequest(payload []byte) (nwid NetworkID, metadata map[string]string, err error) {
	if len(payload) < 10 {
		return 0, nil, ErrMalformed
	}
	nwid = NetworkID(binary.BigEndian.Uint64(payload[:8]))
	n := int(binary.BigEndian.Uint16(payload[8:10]))
	rest := payload[10:]
	metadata = make(map[string]string, n)
	for i := 0; i < n; i++ {
		var k, v string
		if k, rest, err = takeString(rest); err != nil {
			return 0, nil, err
		}
		if v, rest, err = takeString(rest); err != nil {
			return 0, nil, err
		}
		metadata[k] = v
	}
	return nwid, metadata, nil
}

// EncodeConfigRefresh builds a NETWORK_CONFIG_REFRESH payload carrying the
// controller's decision (status, and if OK the full config).
func EncodeConfigRefresh(nwid NetworkID, status Status, cfg *NetworkConfig) []byte {
	out := make([]byte, 0, 32)
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], uint64(nwid))
	out = append(out, idBuf[:]...)
	out = append(out, byte(status))
	if status != StatusOK || cfg == nil {
		return out
	}
	var rev [8]byte
	binary.BigEndian.PutUint64(rev[:], cfg.Revision)
	out = append(out, rev[:]...)
	out = append(out, cfg.MAC[:]...)
	flags := byte(0)
	if cfg.Private {
		flags |= 0x1
	}
	if cfg.EnableBroadcast {
		flags |= 0x2
	}
	out = append(out, flags)
	var mtu [2]byte
	binary.BigEndian.PutUint16(mtu[:], uint16(cfg.MTU))
	out = append(out, mtu[:]...)
	var mcl [2]byte
	binary.BigEndian.PutUint16(mcl[:], uint16(cfg.MulticastLimit))
	out = append(out, mcl[:]...)

	out = append(out, byte(len(cfg.AssignedAddresses)))
	for _, a := range cfg.AssignedAddresses {
		out = putString(out, a)
	}
	out = append(out, byte(len(cfg.Routes)))
	for _, r := range cfg.Routes {
		out = putString(out, r)
	}
	if cfg.COM == nil {
		out = append(out, 0)
	} else {
		out = append(out, 1)
		out = encodeCOM(out, cfg.COM)
	}
	return out
}

// DecodeConfigRefresh parses a NETWORK_CONFIG_REFRESH payload. cfg is nil
// unless status is StatusOK.
func DecodeConfigRefresh(payload []byte) (nwid NetworkID, status Status, cfg *NetworkConfig, err error) {
	if len(payload) < 9 {
		return 0, 0, nil, ErrMalformed
	}
	nwid = NetworkID(binary.BigEndian.Uint64(payload[:8]))
	status = Status(payload[8])
	rest := payload[9:]
	if status != StatusOK {
		return nwid, status, nil, nil
	}
	if len(rest) < 8+6+1+2+2+1 {
		return 0, 0, nil, ErrMalformed
	}
	cfg = &NetworkConfig{NetworkID: nwid}
	cfg.Revision = binary.BigEndian.Uint64(rest[:8])
	rest = rest[8:]
	copy(cfg.MAC[:], rest[:6])
	rest = rest[6:]
	flags := rest[0]
	cfg.Private = flags&0x1 != 0
	cfg.EnableBroadcast = flags&0x2 != 0
	rest = rest[1:]
	cfg.MTU = int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]
	cfg.MulticastLimit = int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]

	if len(rest) < 1 {
		return 0, 0, nil, ErrMalformed
	}
	nAssigned := int(rest[0])
	rest = rest[1:]
	for i := 0; i < nAssigned; i++ {
		var a string
		if a, rest, err = takeString(rest); err != nil {
			return 0, 0, nil, err
		}
		cfg.AssignedAddresses = append(cfg.AssignedAddresses, a)
	}
	if len(rest) < 1 {
		return 0, 0, nil, ErrMalformed
	}
	nRoutes := int(rest[0])
	rest = rest[1:]
	for i := 0; i < nRoutes; i++ {
		var r string
		if r, rest, err = takeString(rest); err != nil {
			return 0, 0, nil, err
		}
		cfg.Routes = append(cfg.Routes, r)
	}
	if len(rest) < 1 {
		return 0, 0, nil, ErrMalformed
	}
	hasCOM := rest[0]
	rest = rest[1:]
	if hasCOM != 0 {
		var com *COM
		if com, _, err = decodeCOM(rest); err != nil {
			return 0, 0, nil, err
		}
		cfg.COM = com
	}
	return nwid, status, cfg, nil
}

func encodeCOM(out []byte, c *COM) []byte {
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], uint64(c.NetworkID))
	out = append(out, idBuf[:]...)
	var issuerBuf, memberBuf [5]byte
	c.Issuer.PutBytes(issuerBuf[:])
	c.Member.PutBytes(memberBuf[:])
	out = append(out, issuerBuf[:]...)
	out = append(out, memberBuf[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(c.Timestamp))
	out = append(out, ts[:]...)
	out = append(out, byte(len(c.Tuples)))
	for _, t := range c.Tuples {
		var b [24]byte
		binary.BigEndian.PutUint64(b[0:8], t.ID)
		binary.BigEndian.PutUint64(b[8:16], t.Value)
		binary.BigEndian.PutUint64(b[16:24], t.MaxDelta)
		out = append(out, b[:]...)
	}
	return out
}

func decodeCOM(bs []byte) (c *COM, rest []byte, err error) {
	if len(bs) < 8+5+5+8+1 {
		return nil, nil, ErrMalformed
	}
	c = &COM{}
	c.NetworkID = NetworkID(binary.BigEndian.Uint64(bs[:8]))
	bs = bs[8:]
	c.Issuer = identity.AddressFromBytes(bs[:5])
	bs = bs[5:]
	c.Member = identity.AddressFromBytes(bs[:5])
	bs = bs[5:]
	c.Timestamp = int64(binary.BigEndian.Uint64(bs[:8]))
	bs = bs[8:]
	n := int(bs[0])
	bs = bs[1:]
	for i := 0; i < n; i++ {
		if len(bs) < 24 {
			return nil, nil, ErrMalformed
		}
		c.Tuples = append(c.Tuples, Tuple{
			ID:       binary.BigEndian.Uint64(bs[0:8]),
			Value:    binary.BigEndian.Uint64(bs[8:16]),
			MaxDelta: binary.BigEndian.Uint64(bs[16:24]),
		})
		bs = bs[24:]
	}
	return c, bs, nil
}
