package cache

import (
	"context"
	"sync"
	"time"

	"objcache/internal/bucket"
)

// Cache is a concurrency-safe, capacity-bounded LRU cache whose entries can be
// pinned. A pinned entry (refcount > 0) is detached from the LRU list and can
// therefore never be evicted or trimmed.
//
// Storage is split in two:
// a bucket.Table maps keys to handles, and an arena holds the entries and
// threads the unpinned ones into an LRU list by handle.
//
// Locking:
//   - bucket locks (inside the table) guard chain linkage
//   - mu (the structural lock) guards the arena, the LRU list and every entry
//
// A bucket lock is always taken before mu, never after. Code that must touch
// both detaches the entry under mu, releases mu, then unlinks the stale
// handle from its bucket.
//
// Ownership model:
// Cache owns its sweeper goroutine. Call Close to stop it.
type Cache[K comparable, V any] struct {
	mu  sync.Mutex
	lru arena[K, V]

	table *bucket.Table[K, handle]

	capacity    int
	idleTimeout time.Duration
	trimBatch   int
	now         func() time.Time
	listener    OverflowListener[K]
	log         *Logger
	stats       counters

	// Goroutine ownership.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sweepEvery time.Duration
	closed     bool
}

// victim is an entry that was detached and released under mu and still has
// to be unlinked from the table.
type victim[K comparable] struct {
	h    handle
	hash uint64
	key  K
}

// New constructs a cache and starts the idle sweeper (if enabled).
//
// listener may be nil.
func New[K comparable, V any](cfg Config, listener OverflowListener[K], opts ...Option[K]) (*Cache[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options[K]
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Cache[K, V]{
		table:       bucket.New[K, handle](cfg.Buckets, o.hasher),
		capacity:    cfg.Capacity,
		idleTimeout: cfg.IdleTimeout,
		trimBatch:   cfg.trimBatchSize(),
		now:         cfg.clock(),
		listener:    listener,
		log:         NewLogger(cfg.Logger),
		ctx:         ctx,
		cancel:      cancel,
		sweepEvery:  cfg.SweepInterval,
	}

	if c.sweepEvery > 0 {
		c.wg.Add(1)
		go c.sweepLoop()
	}

	return c, nil
}

// Close stops the sweeper. The cache stays usable afterwards.
//
// Close is safe to call multiple times.
func (c *Cache[K, V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	// Cancel outside the lock: a sweep in progress needs mu to finish.
	cancel()
	c.wg.Wait()
	return nil
}

// Get looks key up. With pin set, a hit increments the entry's refcount; the
// first pin detaches the entry from the LRU list. Without pin, a hit moves
// the entry to the most recently used position.
//
// The returned value stays owned by the cache.
func (c *Cache[K, V]) Get(key K, pin bool) (V, bool) {
	hash := c.table.Hash(key)
	h, ok := c.table.Find(hash, key)
	if !ok {
		c.stats.misses.Add(1)
		var zero V
		return zero, false
	}

	c.mu.Lock()
	s := c.lru.get(h)
	if s == nil {
		// Removed between Find and mu.
		c.mu.Unlock()
		c.stats.misses.Add(1)
		var zero V
		return zero, false
	}

	s.lastAccess = c.now()
	if pin {
		c.pinLocked(h, s)
	} else if !s.trimmed {
		c.lru.moveToFront(h)
	}
	v := s.value
	c.mu.Unlock()

	c.stats.hits.Add(1)
	return v, true
}

// Put stores value under key.
//
// If key exists its value is replaced in place and the previous value is
// returned with replaced=true. Otherwise a new entry is inserted: pinned
// (refcount 1, outside the LRU list) when pin is set, at the LRU head when
// not. An insertion that pushes the LRU list over capacity evicts exactly
// one entry, the LRU tail, and reports it to the listener.
func (c *Cache[K, V]) Put(key K, value V, pin bool) (old V, replaced bool) {
	hash := c.table.Hash(key)

	for {
		if h, ok := c.table.Find(hash, key); ok {
			if old, ok := c.update(h, value, pin); ok {
				return old, true
			}
		}

		c.mu.Lock()
		h := c.lru.alloc(key, value, hash, c.now())
		c.mu.Unlock()

		existing, inserted := c.table.InsertIfAbsent(hash, key, h, c.isLive)
		if inserted {
			c.activate(h, hash, key, pin)
			var zero V
			return zero, false
		}

		// Lost an insert race for key.
		c.mu.Lock()
		if c.lru.get(h) != nil {
			c.lru.release(h)
		}
		c.mu.Unlock()

		if old, ok := c.update(existing, value, pin); ok {
			return old, true
		}
		// The winner is already gone again; start over.
	}
}

// update replaces the value behind h. It reports false if h no longer
// resolves.
func (c *Cache[K, V]) update(h handle, value V, pin bool) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.lru.get(h)
	if s == nil {
		var zero V
		return zero, false
	}

	old := s.value
	s.value = value
	s.lastAccess = c.now()
	if pin {
		c.pinLocked(h, s)
	} else if !s.trimmed {
		c.lru.moveToFront(h)
	}
	return old, true
}

// activate publishes a freshly inserted entry to the LRU list (or pins it)
// and evicts one victim if that crossed the threshold.
func (c *Cache[K, V]) activate(h handle, hash uint64, key K, pin bool) {
	c.mu.Lock()
	s := c.lru.get(h)
	if s == nil {
		// Clear released the slot while it was pending.
		c.mu.Unlock()
		c.table.RemoveIf(hash, key, isHandle(h))
		return
	}

	s.pending = false
	s.lastAccess = c.now()
	if pin {
		s.refCount++
		c.stats.pins.Add(1)
	}
	// A concurrent Get may already have pinned the pending entry.
	if s.refCount == 0 {
		c.lru.pushFront(h)
	}

	var (
		v       victim[K]
		evicted bool
	)
	if c.thresholdReachedLocked() {
		v, evicted = c.evictOneVictimLocked()
	}
	listSize := c.lru.listSize
	c.mu.Unlock()

	if evicted {
		c.table.RemoveIf(v.hash, v.key, isHandle(v.h))
		c.stats.evictions.Add(1)
		c.log.LogOverflow(v.key, listSize, c.capacity)
		if c.listener != nil {
			c.listener.OnOverflow(v.key)
		}
	}
}

func (c *Cache[K, V]) thresholdReachedLocked() bool {
	return c.capacity > 0 && c.lru.listSize > c.capacity
}

// evictOneVictimLocked detaches and releases the LRU tail. Pinned entries are
// never in the list, so they can not be chosen.
func (c *Cache[K, V]) evictOneVictimLocked() (victim[K], bool) {
	h, ok := c.lru.popTail()
	if !ok {
		return victim[K]{}, false
	}
	hash := c.lru.at(h).hash
	key, _ := c.lru.release(h)
	return victim[K]{h: h, hash: hash, key: key}, true
}

// pinLocked increments the refcount and detaches the entry from the LRU list
// on its first pin.
func (c *Cache[K, V]) pinLocked(h handle, s *slot[K, V]) {
	s.refCount++
	c.stats.pins.Add(1)
	if !s.trimmed {
		c.lru.unlink(h)
	}
}

// Remove deletes key and hands its value back to the caller.
//
// With unpin set the refcount is decremented first. An entry whose refcount
// is still positive afterwards is busy: Remove leaves it alone and returns
// false, as it does for a missing key.
func (c *Cache[K, V]) Remove(key K, unpin bool) (V, bool) {
	var zero V

	hash := c.table.Hash(key)
	h, ok := c.table.Find(hash, key)
	if !ok {
		return zero, false
	}

	c.mu.Lock()
	s := c.lru.get(h)
	if s == nil || s.pending {
		c.mu.Unlock()
		return zero, false
	}

	if unpin {
		if s.refCount == 0 {
			c.log.LogRefcountUnderflow(key)
		} else {
			s.refCount--
			c.stats.unpins.Add(1)
		}
	}
	if s.refCount > 0 {
		c.mu.Unlock()
		return zero, false
	}

	if !s.trimmed {
		c.lru.unlink(h)
	}
	_, value := c.lru.release(h)
	c.mu.Unlock()

	c.table.RemoveIf(hash, key, isHandle(h))
	c.stats.removals.Add(1)
	return value, true
}

// Unpin releases one pin on key without removing it. When the refcount drops
// to zero the entry is relinked at the LRU head. Unpin never evicts; the next
// Put does.
//
// It reports false for a missing key or an entry that was not pinned.
func (c *Cache[K, V]) Unpin(key K) bool {
	hash := c.table.Hash(key)
	h, ok := c.table.Find(hash, key)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.lru.get(h)
	if s == nil {
		return false
	}
	if s.refCount == 0 {
		c.log.LogRefcountUnderflow(key)
		return false
	}

	s.refCount--
	c.stats.unpins.Add(1)
	if s.refCount == 0 && !s.pending {
		s.lastAccess = c.now()
		c.lru.pushFront(h)
	}
	return true
}

// TrimExpired removes up to maxCount entries idle for at least idleTimeout,
// oldest first, and reports them to the listener in one batch. The listener
// is called even when nothing expired.
//
// Only unpinned entries are candidates. With idleTimeout == NoTimeout
// trimming is disabled: nothing is removed and the listener is not called.
func (c *Cache[K, V]) TrimExpired(maxCount int, idleTimeout time.Duration) []K {
	if idleTimeout <= NoTimeout {
		return nil
	}

	c.mu.Lock()
	now := c.now()
	hs := c.lru.detachExpired(maxCount, func(s *slot[K, V]) bool {
		return now.Sub(s.lastAccess) >= idleTimeout
	})
	victims := make([]victim[K], 0, len(hs))
	for _, h := range hs {
		hash := c.lru.at(h).hash
		key, _ := c.lru.release(h)
		victims = append(victims, victim[K]{h: h, hash: hash, key: key})
	}
	c.mu.Unlock()

	keys := make([]K, 0, len(victims))
	for _, v := range victims {
		c.table.RemoveIf(v.hash, v.key, isHandle(v.h))
		keys = append(keys, v.key)
	}

	c.stats.trims.Add(int64(len(keys)))
	c.log.LogTrim(len(keys), maxCount, idleTimeout)
	if c.listener != nil {
		c.listener.OnBatchOverflow(keys)
	}
	return keys
}

// Clear removes every entry, pinned ones included, without notifying the
// listener. Callers must make sure nothing holds a pin across Clear.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	hs := c.lru.liveHandles()
	victims := make([]victim[K], 0, len(hs))
	for _, h := range hs {
		s := c.lru.at(h)
		if !s.trimmed {
			c.lru.unlink(h)
		}
		hash := s.hash
		key, _ := c.lru.release(h)
		victims = append(victims, victim[K]{h: h, hash: hash, key: key})
	}
	c.mu.Unlock()

	for _, v := range victims {
		c.table.RemoveIf(v.hash, v.key, isHandle(v.h))
	}
	c.log.LogClear(len(victims))
}

// Len returns the number of entries, pinned ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.live
}

// ListLen returns the number of unpinned entries in the LRU list.
func (c *Cache[K, V]) ListLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.listSize
}

// RefCount returns the current pin count of key.
func (c *Cache[K, V]) RefCount(key K) (int, bool) {
	hash := c.table.Hash(key)
	h, ok := c.table.Find(hash, key)
	if !ok {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.lru.get(h)
	if s == nil {
		return 0, false
	}
	return s.refCount, true
}

// Keys returns the unpinned keys in MRU -> LRU order.
//
// This is a debug helper used by the demo and tests.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]K, 0, c.lru.listSize)
	c.lru.each(func(_ handle, s *slot[K, V]) {
		out = append(out, s.key)
	})
	return out
}

// Stats returns the current counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	size, listSize := c.lru.live, c.lru.listSize
	c.mu.Unlock()

	return Stats{
		Hits:      c.stats.hits.Load(),
		Misses:    c.stats.misses.Load(),
		Size:      int64(size),
		ListSize:  int64(listSize),
		Evictions: c.stats.evictions.Load(),
		Trims:     c.stats.trims.Load(),
		Pins:      c.stats.pins.Load(),
		Unpins:    c.stats.unpins.Load(),
		Removals:  c.stats.removals.Load(),
	}
}

// isLive is the staleness check for table nodes. It runs under a bucket lock.
func (c *Cache[K, V]) isLive(h handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.get(h) != nil
}

func isHandle(h handle) func(handle) bool {
	return func(v handle) bool { return v == h }
}
