package sketches

import "github.com/spaolacci/murmur3"

// hashSeed is shared by every sketch so that independently built sketches
// hash identically and can be merged.
const hashSeed = 304837963

// hashPair holds the two halves of the 128-bit item hash.
type hashPair struct {
	h1 uint64
	h2 uint64
}

func hashBytes(data []byte) hashPair {
	h1, h2 := murmur3.Sum128WithSeed(data, hashSeed)
	return hashPair{h1: h1, h2: h2}
}

// column returns the counter column of row i using g_i(x) = h1 + i*h2.
func (h hashPair) column(row, width uint32) uint32 {
	v := h.h1 + uint64(row)*h.h2
	return uint32(v % uint64(width))
}
