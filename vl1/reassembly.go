package vl1

import (
	"time"
)

// reassemblyKey identifies one in-progress reassembly: the physical
// endpoint bytes arrived over, plus the head packet's ID. Fragments carry
// no source-address field (spec.md §6's fragment header has only dest +
// packetID), so reassembly cannot be keyed by Peer; the switch tracks it
// by remote physical endpoint instead, per the design decision recorded
// in DESIGN.md.
type reassemblyKey struct {
	remote   string
	packetID uint64
}

type reassemblyEntry struct {
	head       []byte // raw head packet bytes (header + verb + head payload), nil until arrived
	totalFrags byte   // 0 until the first tail fragment arrives and states it
	tails      map[byte][]byte
	started    time.Time
}

// reassemblyTable reassembles a head packet plus up to 15 tail fragments
// into one logical packet. Slots expire after T_reassembly (spec.md §4.2);
// an incomplete set on expiry is dropped silently with no memory retained.
type reassemblyTable struct {
	timeout time.Duration
	entries map[reassemblyKey]*reassemblyEntry
}

func newReassemblyTable(timeout time.Duration) *reassemblyTable {
	return &reassemblyTable{timeout: timeout, entries: make(map[reassemblyKey]*reassemblyEntry)}
}

func (r *reassemblyTable) entryFor(now time.Time, key reassemblyKey) *reassemblyEntry {
	e, ok := r.entries[key]
	if !ok {
		e = &reassemblyEntry{tails: make(map[byte][]byte), started: now}
		r.entries[key] = e
	}
	return e
}

// AddHead stages a head packet that announced (via Header.FlagFragmented)
// that tail fragments are coming. The caller must not treat this packet
// as complete on its own.
func (r *reassemblyTable) AddHead(now time.Time, key reassemblyKey, raw []byte) (complete []byte, done bool) {
	e := r.entryFor(now, key)
	e.head = raw
	return r.tryAssemble(key, e)
}

// AddTail records one tail fragment's data (post-fragment-header payload
// bytes) and the total fragment count it declares. Duplicate fragment
// numbers overwrite, per spec.md §4.2.
func (r *reassemblyTable) AddTail(now time.Time, key reassemblyKey, fragNo, totalFrags byte, data []byte) (complete []byte, done bool) {
	e := r.entryFor(now, key)
	if e.totalFrags == 0 {
		e.totalFrags = totalFrags
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	e.tails[fragNo] = buf
	return r.tryAssemble(key, e)
}

func (r *reassemblyTable) tryAssemble(key reassemblyKey, e *reassemblyEntry) (complete []byte, done bool) {
	if e.head == nil || e.totalFrags == 0 {
		return nil, false
	}
	// FragNo runs 1..totalFrags-1; the head packet itself is "fragment 0".
	for i := byte(1); i < e.totalFrags; i++ {
		if _, ok := e.tails[i]; !ok {
			return nil, false
		}
	}
	out := append([]byte(nil), e.head...)
	for i := byte(1); i < e.totalFrags; i++ {
		out = append(out, e.tails[i]...)
	}
	delete(r.entries, key)
	return out, true
}

// Expire drops any reassembly slot older than the timeout.
func (r *reassemblyTable) Expire(now time.Time) {
	for key, e := range r.entries {
		if now.Sub(e.started) >= r.timeout {
			delete(r.entries, key)
		}
	}
}
