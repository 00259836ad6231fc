package cache

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type recordingListener struct {
	mu       sync.Mutex
	overflow []string
	batches  [][]string
}

func (r *recordingListener) OnOverflow(key string) {
	r.mu.Lock()
	r.overflow = append(r.overflow, key)
	r.mu.Unlock()
}

func (r *recordingListener) OnBatchOverflow(keys []string) {
	r.mu.Lock()
	r.batches = append(r.batches, slices.Clone(keys))
	r.mu.Unlock()
}

func (r *recordingListener) Overflowed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.overflow...)
}

func (r *recordingListener) Batches() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func newTestCache(t *testing.T, cfg Config, l OverflowListener[string]) *Cache[string, string] {
	t.Helper()

	c, err := New[string, string](cfg, l)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// checkInvariants verifies the structural invariants of c:
//   - the list is consistently linked in both directions and listSize matches
//   - an entry is in the list iff it is live, not trimmed, not pending and unpinned
//   - every live entry is reachable from its bucket
//
// It takes a bucket lock while holding mu, so only call it on a quiescent cache.
func checkInvariants[K comparable, V any](c *Cache[K, V]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := &c.lru
	inList := make(map[handle]bool)
	prev := nilHandle
	for cur := a.head; cur != nilHandle; cur = a.at(cur).next {
		if inList[cur] {
			return fmt.Errorf("cycle at handle %x", cur)
		}
		inList[cur] = true

		s := a.get(cur)
		if s == nil {
			return fmt.Errorf("released handle %x in list", cur)
		}
		if s.prev != prev {
			return fmt.Errorf("handle %x: prev %x, want %x", cur, s.prev, prev)
		}
		if s.trimmed || s.pending || s.refCount != 0 {
			return fmt.Errorf("handle %x in list with trimmed=%v pending=%v refCount=%d",
				cur, s.trimmed, s.pending, s.refCount)
		}
		prev = cur
	}
	if a.tail != prev {
		return fmt.Errorf("tail %x, want %x", a.tail, prev)
	}
	if len(inList) != a.listSize {
		return fmt.Errorf("listSize %d, list holds %d", a.listSize, len(inList))
	}

	live := 0
	for _, h := range a.liveHandles() {
		live++
		s := a.at(h)
		if s.refCount < 0 {
			return fmt.Errorf("handle %x: negative refCount", h)
		}
		if !s.trimmed && !inList[h] {
			return fmt.Errorf("handle %x: not trimmed but missing from list", h)
		}
		if s.pending {
			continue
		}
		if got, ok := c.table.Find(s.hash, s.key); !ok || got != h {
			return fmt.Errorf("handle %x: bucket lookup returned %x, %v", h, got, ok)
		}
	}
	if live != a.live {
		return fmt.Errorf("live count %d, arena says %d", live, a.live)
	}
	return nil
}
