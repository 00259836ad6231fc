package bucket

import (
	"sync"
	"sync/atomic"
)

// DefaultBuckets is used when a table is created with a non-positive width.
const DefaultBuckets = 64

type node[K comparable, V any] struct {
	hash  uint64
	key   K
	value V
	next  *node[K, V]
}

// bucket is a single chain with its own lock.
type bucket[K comparable, V any] struct {
	mu   sync.Mutex
	head *node[K, V]
}

// Table is an open hash table of fixed width. Every bucket is protected by
// its own mutex; there is no table-wide lock.
//
// Insertions go to the head of the chain, so the most recently inserted node
// for a key is always found first.
type Table[K comparable, V any] struct {
	buckets []bucket[K, V]
	mask    uint64
	hasher  Hasher[K]

	count     atomic.Int64
	contended atomic.Int64
}

// New creates a table with at least n buckets. The width is rounded up to a
// power of two so the bucket index is hash & (width-1), which equals
// hash mod width. A nil hasher selects DefaultHasher.
func New[K comparable, V any](n int, hasher Hasher[K]) *Table[K, V] {
	if n <= 0 {
		n = DefaultBuckets
	}
	n = nextPowerOf2(n)
	if hasher == nil {
		hasher = DefaultHasher[K]()
	}

	return &Table[K, V]{
		buckets: make([]bucket[K, V], n),
		mask:    uint64(n - 1),
		hasher:  hasher,
	}
}

// Hash computes the hash of key with the table's hasher.
func (t *Table[K, V]) Hash(key K) uint64 {
	return t.hasher(key)
}

// Index returns the bucket index for hash.
func (t *Table[K, V]) Index(hash uint64) int {
	return int(hash & t.mask)
}

// lock acquires the bucket for hash, counting acquisitions that had to wait.
func (t *Table[K, V]) lock(hash uint64) *bucket[K, V] {
	b := &t.buckets[hash&t.mask]
	if !b.mu.TryLock() {
		t.contended.Add(1)
		b.mu.Lock()
	}
	return b
}

// Find returns the value of the first node matching hash and key.
func (t *Table[K, V]) Find(hash uint64, key K) (V, bool) {
	b := t.lock(hash)
	defer b.mu.Unlock()

	for n := b.head; n != nil; n = n.next {
		if n.hash == hash && n.key == key {
			return n.value, true
		}
	}
	var zero V
	return zero, false
}

// InsertHead prepends a node to the chain. It does not check for an existing
// node with the same key.
func (t *Table[K, V]) InsertHead(hash uint64, key K, value V) {
	b := t.lock(hash)
	b.head = &node[K, V]{hash: hash, key: key, value: value, next: b.head}
	b.mu.Unlock()

	t.count.Add(1)
}

// InsertIfAbsent prepends value unless a node for key already exists whose
// value satisfies live. Nodes failing live are treated as stale and ignored.
// It returns the existing live value and false, or value and true when the
// node was inserted. live runs under the bucket lock.
func (t *Table[K, V]) InsertIfAbsent(hash uint64, key K, value V, live func(V) bool) (V, bool) {
	b := t.lock(hash)

	for n := b.head; n != nil; n = n.next {
		if n.hash == hash && n.key == key && (live == nil || live(n.value)) {
			existing := n.value
			b.mu.Unlock()
			return existing, false
		}
	}

	b.head = &node[K, V]{hash: hash, key: key, value: value, next: b.head}
	b.mu.Unlock()

	t.count.Add(1)
	return value, true
}

// RemoveIf unlinks the first node matching hash and key for which pred
// holds and returns its value. pred runs under the bucket lock; a nil pred
// matches any node.
func (t *Table[K, V]) RemoveIf(hash uint64, key K, pred func(V) bool) (V, bool) {
	b := t.lock(hash)

	var prev *node[K, V]
	for n := b.head; n != nil; prev, n = n, n.next {
		if n.hash != hash || n.key != key {
			continue
		}
		if pred != nil && !pred(n.value) {
			continue
		}

		if prev == nil {
			b.head = n.next
		} else {
			prev.next = n.next
		}
		n.next = nil
		b.mu.Unlock()

		t.count.Add(-1)
		return n.value, true
	}

	b.mu.Unlock()
	var zero V
	return zero, false
}

// Len returns the number of nodes across all buckets, stale ones included.
func (t *Table[K, V]) Len() int {
	return int(t.count.Load())
}

// Buckets returns the table width.
func (t *Table[K, V]) Buckets() int {
	return len(t.buckets)
}

// Contended returns how many bucket lock acquisitions had to wait for
// another holder.
func (t *Table[K, V]) Contended() int64 {
	return t.contended.Load()
}

// ChainLen returns the length of the chain at bucket index i.
func (t *Table[K, V]) ChainLen(i int) int {
	b := &t.buckets[i]
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for nd := b.head; nd != nil; nd = nd.next {
		n++
	}
	return n
}
