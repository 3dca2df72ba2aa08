package vl2

import "github.com/vlcore/engine/identity"

// Tuple is one (id, value, maxDelta) entry of a certificate of
// membership, per spec.md §3/§4.4.
type Tuple struct {
	ID       uint64
	Value    uint64
	MaxDelta uint64
}

// COM is a certificate of membership: a controller-issued, signed set of
// tuples a member presents so peers can decide whether to accept its
// frames on a private network (spec.md §4.4).
type COM struct {
	NetworkID NetworkID
	Issuer    identity.Address // the controller that issued it
	Member    identity.Address // the node it was issued to
	Timestamp int64
	Tuples    []Tuple
}

// Compatible reports whether a and b may exchange frames: for every tuple
// ID present in both certificates, the values must differ by no more than
// the smaller of the two declared maxDelta bounds (spec.md §4.4: "Two COMs
// are compatible iff for every shared id, |a.value − b.value| ≤
// min(a.maxDelta, b.maxDelta)"). Tuple IDs present in only one certificate
// impose no constraint. The relation is symmetric by construction: the
// absolute difference and the min of the two bounds are each symmetric in
// (a, b).
func (a *COM) Compatible(b *COM) bool {
	if a == nil || b == nil {
		return false
	}
	bByID := make(map[uint64]Tuple, len(b.Tuples))
	for _, t := range b.Tuples {
		bByID[t.ID] = t
	}
	for _, at := range a.Tuples {
		bt, shared := bByID[at.ID]
		if !shared {
			continue
		}
		diff := int64(at.Value) - int64(bt.Value)
		if diff < 0 {
			diff = -diff
		}
		bound := at.MaxDelta
		if bt.MaxDelta < bound {
			bound = bt.MaxDelta
		}
		if uint64(diff) > bound {
			return false
		}
	}
	return true
}
