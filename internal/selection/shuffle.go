package selection

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
)

// NewSource returns the attempt-scoped random source for seed.
func NewSource(seed int64) *mrand.Rand {
	return mrand.New(mrand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// NewSeed draws a fresh attempt seed from the OS entropy source.
func NewSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return mrand.Int64()
	}
	return int64(binary.LittleEndian.Uint64(b[:]) >> 1)
}

// permutation returns a uniformly shuffled index array 0..n-1.
func permutation(rng *mrand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

// sample draws k distinct indices from 0..n-1 with a partial Fisher–Yates.
// Caller guarantees k <= n.
func sample(rng *mrand.Rand, n, k int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}
