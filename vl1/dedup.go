package vl1

import (
	"time"

	"github.com/vlcore/engine/identity"
)

// dedupTable rejects a duplicate packetID from the same source seen again
// within T_dedup (spec.md §4.3/§8: "exactly-once per T_dedup"). Entries
// older than the window are swept by Expire (run from the switch's
// ExpireState), not on insert, following the
// teacher's bloomfilter.go rotation idiom (network/bloomfilter.go) scaled
// down to a plain map since VL1 needs exact duplicate rejection rather
// than a probabilistic filter.
type dedupTable struct {
	window time.Duration
	seen   map[identity.Address]map[uint64]time.Time
}

func newDedupTable(window time.Duration) *dedupTable {
	return &dedupTable{window: window, seen: make(map[identity.Address]map[uint64]time.Time)}
}

// CheckAndMark reports whether (source, packetID) was already seen within
// the dedup window; if not, it records it and returns false.
func (d *dedupTable) CheckAndMark(now time.Time, source identity.Address, packetID uint64) (duplicate bool) {
	byID, ok := d.seen[source]
	if !ok {
		byID = make(map[uint64]time.Time)
		d.seen[source] = byID
	}
	if seenAt, ok := byID[packetID]; ok && now.Sub(seenAt) < d.window {
		return true
	}
	byID[packetID] = now
	return false
}

// Expire drops entries older than the dedup window, and any source whose
// entire packetID set has gone empty.
func (d *dedupTable) Expire(now time.Time) {
	for source, byID := range d.seen {
		for id, seenAt := range byID {
			if now.Sub(seenAt) >= d.window {
				delete(byID, id)
			}
		}
		if len(byID) == 0 {
			delete(d.seen, source)
		}
	}
}
