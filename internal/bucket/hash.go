package bucket

import (
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
)

// Hasher maps a key to its 64-bit hash. It must be deterministic for the
// lifetime of a table.
type Hasher[K comparable] func(K) uint64

// StringHasher hashes string keys with xxhash.
func StringHasher(s string) uint64 {
	return xxhash.Sum64String(s)
}

// BytesHasher hashes raw key bytes with xxhash.
func BytesHasher(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// DefaultHasher returns xxhash for string keys and a randomly seeded
// maphash.Comparable for every other comparable key type.
func DefaultHasher[K comparable]() Hasher[K] {
	var zero K
	if _, ok := any(zero).(string); ok {
		return func(k K) uint64 {
			return StringHasher(any(k).(string))
		}
	}

	seed := maphash.MakeSeed()
	return func(k K) uint64 {
		return maphash.Comparable(seed, k)
	}
}

// nextPowerOf2 returns the next power of 2 >= n
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
