package crypto

import "encoding/binary"

// Salsa20/12: the same core transform as Salsa20/20, but with the round
// count cut in half (six double-rounds instead of ten). x/crypto/salsa20
// only exposes the fixed 20-round construction, so the reduced-round core
// is reproduced here directly from the published algorithm.

const salsaRounds = 12

var sigma = [4]uint32{0x61707865, 0x3320646e, 0x79622d32, 0x6b206574}

func salsaQuarterRound(a, b, c, d *uint32) {
	*b ^= rotl(*a+*d, 7)
	*c ^= rotl(*b+*a, 9)
	*d ^= rotl(*c+*b, 13)
	*a ^= rotl(*d+*c, 18)
}

func rotl(x uint32, n uint) uint32 {
	return x<<n | x>>(32-n)
}

// salsaBlock expands a 256-bit key, a 64-bit nonce and a 64-bit block
// counter into one 64-byte keystream block.
func salsaBlock(out *[64]byte, key *[32]byte, nonce, counter uint64) {
	var x [16]uint32
	x[0] = sigma[0]
	x[1] = binary.LittleEndian.Uint32(key[0:4])
	x[2] = binary.LittleEndian.Uint32(key[4:8])
	x[3] = binary.LittleEndian.Uint32(key[8:12])
	x[4] = binary.LittleEndian.Uint32(key[12:16])
	x[5] = sigma[1]
	x[6] = uint32(nonce)
	x[7] = uint32(nonce >> 32)
	x[8] = uint32(counter)
	x[9] = uint32(counter >> 32)
	x[10] = sigma[2]
	x[11] = binary.LittleEndian.Uint32(key[16:20])
	x[12] = binary.LittleEndian.Uint32(key[20:24])
	x[13] = binary.LittleEndian.Uint32(key[24:28])
	x[14] = binary.LittleEndian.Uint32(key[28:32])
	x[15] = sigma[3]

	work := x
	for i := 0; i < salsaRounds; i += 2 {
		// column round
		salsaQuarterRound(&work[0], &work[4], &work[8], &work[12])
		salsaQuarterRound(&work[5], &work[9], &work[13], &work[1])
		salsaQuarterRound(&work[10], &work[14], &work[2], &work[6])
		salsaQuarterRound(&work[15], &work[3], &work[7], &work[11])
		// row round
		salsaQuarterRound(&work[0], &work[1], &work[2], &work[3])
		salsaQuarterRound(&work[5], &work[6], &work[7], &work[4])
		salsaQuarterRound(&work[10], &work[11], &work[8], &work[9])
		salsaQuarterRound(&work[15], &work[12], &work[13], &work[14])
	}
	for i := range work {
		work[i] += x[i]
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], work[i])
	}
}

// Salsa2012Block computes a single 64-byte keystream block, exported so
// that the wire codec can carve a one-time Poly1305 key out of block 0
// without encrypting anything with it (the NaCl secretbox idiom, adapted
// to the reduced-round cipher).
func Salsa2012Block(out *[64]byte, key *[32]byte, nonce, counter uint64) {
	salsaBlock(out, key, nonce, counter)
}

// Salsa2012XORKeyStream XORs src into dst using Salsa20/12 keyed by key,
// with the stream positioned at the given nonce and initial block counter.
// dst and src may overlap exactly.
func Salsa2012XORKeyStream(dst, src []byte, nonce uint64, counter uint64, key *[32]byte) {
	var block [64]byte
	for len(src) > 0 {
		salsaBlock(&block, key, nonce, counter)
		counter++
		n := len(src)
		if n > 64 {
			n = 64
		}
		for i := 0; i < n; i++ {
			dst[i] = src[i] ^ block[i]
		}
		dst = dst[n:]
		src = src[n:]
	}
}
