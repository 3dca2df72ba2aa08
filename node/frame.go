package node

import "encoding/binary"

const (
	ethHeaderLen  = 14
	ethTypeVLAN   = 0x8100
	vlanHeaderLen = 4
)

// parseEthernetFrame splits a raw virtual-Ethernet frame into its header
// fields and payload, transparently unwrapping a single 802.1Q tag.
func parseEthernetFrame(raw []byte) (dst, src [6]byte, etherType uint16, vlanID uint16, payload []byte, ok bool) {
	if len(raw) < ethHeaderLen {
		return
	}
	copy(dst[:], raw[0:6])
	copy(src[:], raw[6:12])
	etherType = binary.BigEndian.Uint16(raw[12:14])
	rest := raw[14:]
	if etherType == ethTypeVLAN && len(rest) >= vlanHeaderLen {
		vlanID = binary.BigEndian.Uint16(rest[0:2]) & 0x0fff
		etherType = binary.BigEndian.Uint16(rest[2:4])
		rest = rest[4:]
	}
	return dst, src, etherType, vlanID, rest, true
}

// buildEthernetFrame is parseEthernetFrame's inverse, tagging the frame
// with vlanID if non-zero.
func buildEthernetFrame(dst, src [6]byte, etherType uint16, vlanID uint16, payload []byte) []byte {
	hdrLen := ethHeaderLen
	if vlanID != 0 {
		hdrLen += vlanHeaderLen
	}
	out := make([]byte, 0, hdrLen+len(payload))
	out = append(out, dst[:]...)
	out = append(out, src[:]...)
	if vlanID != 0 {
		out = append(out, 0x81, 0x00)
		var v [2]byte
		binary.BigEndian.PutUint16(v[:], vlanID&0x0fff)
		out = append(out, v[:]...)
	}
	var et [2]byte
	binary.BigEndian.PutUint16(et[:], etherType)
	out = append(out, et[:]...)
	return append(out, payload...)
}
