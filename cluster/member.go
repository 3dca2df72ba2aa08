// Package cluster implements spec.md §4.6's peer-ownership sharding: a
// small (<128-member) set of cooperating engine instances splitting a
// shared peer population, gossiping ownership over an HMAC-authenticated
// backplane, and handing a peer off to whichever member can serve it with
// lower load or, on a tie, from closer to it. It is grounded on the
// teacher's `network/peers.go` sequence-numbered framing idiom
// (generalized here into the anti-replay window below) and
// `encrypted/crypto.go`'s habit of deriving a fresh symmetric key per
// session rather than reusing one secret directly on the wire.
package cluster

// MemberID is a cluster member's slot, per spec.md §4.6: "member ID ∈
// [0,128)".
type MemberID byte

const MaxMembers = 128

// Member is the last-known state of one other cluster member, updated by
// its HEARTBEAT messages.
type Member struct {
	ID            MemberID
	Load          uint32
	GeoX, GeoY    int32
	LastHeartbeat int64 // unix nanoseconds
}

// ownerClaim records who last asserted ownership of a peer address, and
// with what load/geo it made the claim.
type ownerClaim struct {
	owner MemberID
	load  uint32
	geoX  int32
	geoY  int32
	at    int64
}

// geoDistanceSq is the squared Euclidean distance between two geo hints,
// avoiding a sqrt since only relative ordering matters.
func geoDistanceSq(ax, ay, bx, by int32) int64 {
	dx := int64(ax) - int64(bx)
	dy := int64(ay) - int64(by)
	return dx*dx + dy*dy
}

// wins reports whether candidate should own targetGeo over incumbent:
// lower load wins outright; a tie is broken by whichever is geographically
// closer to the target; a further tie is broken by the lower MemberID, so
// the comparison is a total order and never flaps between two equally-
// qualified members (spec.md §4.6: "ownership handoff on lower-load or
// closer-geo winner").
func wins(candidate, incumbent ownerClaim, targetX, targetY int32) bool {
	if candidate.load != incumbent.load {
		return candidate.load < incumbent.load
	}
	cd := geoDistanceSq(candidate.geoX, candidate.geoY, targetX, targetY)
	id := geoDistanceSq(incumbent.geoX, incumbent.geoY, targetX, targetY)
	if cd != id {
		return cd < id
	}
	return candidate.owner < incumbent.owner
}
