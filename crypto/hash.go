package crypto

import "hash/maphash"

// DictHasher is a fast keyed hash for in-memory dictionary keys. The vl1
// reassembly and dedup tables and the topology's peer lookup key plain Go
// maps by struct and Address values and do not use it. stdlib's hash/maphash is a
// seeded, non-cryptographic hash purpose-built for exactly this job (it is
// what Go's own map implementation uses internally); no pack example reaches
// for a third-party SipHash, and doing so here would mean reaching past the
// standard library's best-fit tool rather than past a library the ecosystem
// actually prefers.
type DictHasher struct {
	seed maphash.Seed
}

// NewDictHasher creates a hasher with a fresh random seed. Two DictHashers
// never agree on a hash for the same input, by design: this hash is for
// single-process in-memory dictionaries, not wire compatibility.
func NewDictHasher() DictHasher {
	return DictHasher{seed: maphash.MakeSeed()}
}

func (h DictHasher) Hash(key []byte) uint64 {
	var m maphash.Hash
	m.SetSeed(h.seed)
	_, _ = m.Write(key)
	return m.Sum64()
}

// SourceAndID hashes a (source address, packet ID) pair, the shape of key a
// fragment-reassembly or duplicate-packetID table is indexed by.
func (h DictHasher) SourceAndID(source []byte, id uint64) uint64 {
	var m maphash.Hash
	m.SetSeed(h.seed)
	_, _ = m.Write(source)
	var idBytes [8]byte
	for i := range idBytes {
		idBytes[i] = byte(id >> (8 * i))
	}
	_, _ = m.Write(idBytes[:])
	return m.Sum64()
}
