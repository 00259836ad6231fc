package bucket

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func identity(k int) uint64 { return uint64(k) }

func TestNew_RoundsWidthToPowerOfTwo(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: DefaultBuckets},
		{in: -3, want: DefaultBuckets},
		{in: 1, want: 1},
		{in: 3, want: 4},
		{in: 64, want: 64},
		{in: 100, want: 128},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.in), func(t *testing.T) {
			tbl := New[int, string](tt.in, identity)
			assert.Equal(t, tt.want, tbl.Buckets())
		})
	}
}

func TestIndex_IsHashModWidth(t *testing.T) {
	tbl := New[int, string](8, identity)
	for _, h := range []uint64{0, 7, 8, 9, 1023, 1<<63 + 5} {
		assert.Equal(t, int(h%8), tbl.Index(h))
	}
}

func TestFindInsertRemove(t *testing.T) {
	tbl := New[string, int](4, nil)

	h := tbl.Hash("a")
	_, ok := tbl.Find(h, "a")
	assert.False(t, ok)

	tbl.InsertHead(h, "a", 1)
	v, ok := tbl.Find(h, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, tbl.Len())

	v, ok = tbl.RemoveIf(h, "a", nil)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 0, tbl.Len())

	_, ok = tbl.Find(h, "a")
	assert.False(t, ok)
}

func TestInsertHead_NewestFoundFirst(t *testing.T) {
	tbl := New[int, string](1, identity)

	tbl.InsertHead(5, 5, "old")
	tbl.InsertHead(5, 5, "new")

	v, ok := tbl.Find(5, 5)
	require.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 2, tbl.ChainLen(0))
}

func TestFind_ComparesKeyNotJustHash(t *testing.T) {
	// Every key collides on hash 0.
	tbl := New[string, int](2, func(string) uint64 { return 0 })

	tbl.InsertHead(0, "x", 1)
	tbl.InsertHead(0, "y", 2)

	v, ok := tbl.Find(0, "x")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = tbl.Find(0, "z")
	assert.False(t, ok)
}

func TestRemoveIf_PredicateGates(t *testing.T) {
	tbl := New[int, int](2, identity)
	tbl.InsertHead(1, 1, 10)
	tbl.InsertHead(1, 1, 20)

	// Refuse everything.
	_, ok := tbl.RemoveIf(1, 1, func(int) bool { return false })
	assert.False(t, ok)
	assert.Equal(t, 2, tbl.Len())

	// Pick the older node specifically.
	v, ok := tbl.RemoveIf(1, 1, func(v int) bool { return v == 10 })
	require.True(t, ok)
	assert.Equal(t, 10, v)

	v, ok = tbl.Find(1, 1)
	require.True(t, ok)
	assert.Equal(t, 20, v)
}

func TestRemoveIf_MiddleAndTailOfChain(t *testing.T) {
	tbl := New[int, int](1, identity)
	for k := 1; k <= 4; k++ {
		tbl.InsertHead(uint64(k), k, k*10)
	}

	_, ok := tbl.RemoveIf(1, 1, nil) // tail
	require.True(t, ok)
	_, ok = tbl.RemoveIf(3, 3, nil) // middle
	require.True(t, ok)

	assert.Equal(t, 2, tbl.ChainLen(0))
	for _, k := range []int{2, 4} {
		_, ok := tbl.Find(uint64(k), k)
		assert.True(t, ok, "key %d", k)
	}
}

func TestInsertIfAbsent(t *testing.T) {
	tbl := New[int, int](4, identity)

	v, inserted := tbl.InsertIfAbsent(3, 3, 1, nil)
	assert.True(t, inserted)
	assert.Equal(t, 1, v)

	v, inserted = tbl.InsertIfAbsent(3, 3, 2, nil)
	assert.False(t, inserted)
	assert.Equal(t, 1, v)

	// A stale node does not block insertion.
	stale := func(v int) bool { return v != 1 }
	v, inserted = tbl.InsertIfAbsent(3, 3, 2, stale)
	assert.True(t, inserted)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, tbl.Len())
}

func TestInsertIfAbsent_ConcurrentSameKeyInsertsOnce(t *testing.T) {
	tbl := New[string, int](8, nil)
	h := tbl.Hash("k")

	var (
		mu       sync.Mutex
		winners  int
		g        errgroup.Group
		attempts = 32
	)
	for i := range attempts {
		g.Go(func() error {
			if _, inserted := tbl.InsertIfAbsent(h, "k", i, nil); inserted {
				mu.Lock()
				winners++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, tbl.Len())
}

func TestDifferentBucketsDoNotContend(t *testing.T) {
	const width = 8
	tbl := New[int, int](width, identity)

	// Each goroutine owns exactly one bucket index.
	var g errgroup.Group
	for b := range width {
		g.Go(func() error {
			for i := range 2000 {
				k := b + i*width
				tbl.InsertHead(uint64(k), k, i)
				if _, ok := tbl.Find(uint64(k), k); !ok {
					return fmt.Errorf("key %d missing after insert", k)
				}
				if _, ok := tbl.RemoveIf(uint64(k), k, nil); !ok {
					return fmt.Errorf("key %d missing on remove", k)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Zero(t, tbl.Contended())
	assert.Equal(t, 0, tbl.Len())
}

func TestDefaultHasher(t *testing.T) {
	hs := DefaultHasher[string]()
	assert.Equal(t, StringHasher("abc"), hs("abc"))
	assert.Equal(t, BytesHasher([]byte("abc")), hs("abc"))

	type pair struct {
		a int
		b string
	}
	hp := DefaultHasher[pair]()
	assert.Equal(t, hp(pair{1, "x"}), hp(pair{1, "x"}))
}
