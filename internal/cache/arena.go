package cache

import "time"

// handle addresses an arena slot: the low 32 bits are the slot index, the
// high 32 bits its generation. Generations start at 1, so the zero handle is
// never valid and terminates the LRU list.
type handle uint64

const nilHandle handle = 0

func makeHandle(index, gen uint32) handle {
	return handle(uint64(gen)<<32 | uint64(index))
}

func (h handle) index() uint32 { return uint32(h) }
func (h handle) gen() uint32   { return uint32(h >> 32) }

// slot is one cache entry. All fields are guarded by the cache's structural
// lock.
type slot[K comparable, V any] struct {
	key   K
	value V
	hash  uint64

	gen  uint32
	live bool
	// pending is set between allocation and the entry becoming visible in
	// the bucket table. Pending slots are never in the LRU list.
	pending bool

	refCount int
	// trimmed marks a slot that is not linked into the LRU list.
	trimmed    bool
	lastAccess time.Time

	// LRU links; prev points towards the head (MRU), next towards the tail.
	prev handle
	next handle
}

// arena owns every slot and threads the unpinned ones into an LRU list.
// head is the most recently used entry, tail the least recently used.
//
// Pointers returned by get and at are invalidated by alloc.
type arena[K comparable, V any] struct {
	slots []slot[K, V]
	free  []uint32

	head     handle
	tail     handle
	listSize int
	live     int
}

// alloc places key/value into a free slot. The slot starts pending and
// detached from the list.
func (a *arena[K, V]) alloc(key K, value V, hash uint64, now time.Time) handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[K, V]{gen: 1})
		idx = uint32(len(a.slots) - 1)
	}

	s := &a.slots[idx]
	s.key = key
	s.value = value
	s.hash = hash
	s.live = true
	s.pending = true
	s.refCount = 0
	s.trimmed = true
	s.lastAccess = now
	s.prev = nilHandle
	s.next = nilHandle
	a.live++

	return makeHandle(idx, s.gen)
}

// release returns a detached slot to the free list and bumps its generation
// so outstanding handles stop resolving.
func (a *arena[K, V]) release(h handle) (K, V) {
	s := a.at(h)
	key, value := s.key, s.value

	var (
		zk K
		zv V
	)
	s.key = zk
	s.value = zv
	s.live = false
	s.pending = false
	s.refCount = 0
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}

	a.free = append(a.free, h.index())
	a.live--
	return key, value
}

// get resolves h, returning nil if the slot was released since h was issued.
func (a *arena[K, V]) get(h handle) *slot[K, V] {
	idx := h.index()
	if int(idx) >= len(a.slots) {
		return nil
	}
	s := &a.slots[idx]
	if !s.live || s.gen != h.gen() {
		return nil
	}
	return s
}

// at returns the slot for h without validation.
func (a *arena[K, V]) at(h handle) *slot[K, V] {
	return &a.slots[h.index()]
}

func (a *arena[K, V]) pushFront(h handle) {
	s := a.at(h)
	s.prev = nilHandle
	s.next = a.head
	if a.head != nilHandle {
		a.at(a.head).prev = h
	} else {
		a.tail = h
	}
	a.head = h
	s.trimmed = false
	a.listSize++
}

func (a *arena[K, V]) unlink(h handle) {
	s := a.at(h)
	if s.prev != nilHandle {
		a.at(s.prev).next = s.next
	} else {
		a.head = s.next
	}
	if s.next != nilHandle {
		a.at(s.next).prev = s.prev
	} else {
		a.tail = s.prev
	}
	s.prev = nilHandle
	s.next = nilHandle
	s.trimmed = true
	a.listSize--
}

func (a *arena[K, V]) moveToFront(h handle) {
	if a.head == h {
		return
	}
	a.unlink(h)
	a.pushFront(h)
}

// popTail unlinks and returns the least recently used entry.
func (a *arena[K, V]) popTail() (handle, bool) {
	h := a.tail
	if h == nilHandle {
		return nilHandle, false
	}
	a.unlink(h)
	return h, true
}

// detachExpired walks from the tail towards the head while expired holds and
// fewer than limit entries were visited, then cuts the visited suffix off the
// list with a single relink. Handles are returned oldest first.
func (a *arena[K, V]) detachExpired(limit int, expired func(*slot[K, V]) bool) []handle {
	var out []handle
	cur := a.tail
	for cur != nilHandle && len(out) < limit {
		s := a.at(cur)
		if !expired(s) {
			break
		}
		out = append(out, cur)
		cur = s.prev
	}
	if len(out) == 0 {
		return nil
	}

	// cur is the new tail, or nil if the whole list expired.
	if cur == nilHandle {
		a.head = nilHandle
	} else {
		a.at(cur).next = nilHandle
	}
	a.tail = cur
	a.listSize -= len(out)

	for _, h := range out {
		s := a.at(h)
		s.prev = nilHandle
		s.next = nilHandle
		s.trimmed = true
	}
	return out
}

// liveHandles returns a handle for every live slot, pending ones included.
func (a *arena[K, V]) liveHandles() []handle {
	out := make([]handle, 0, a.live)
	for i := range a.slots {
		s := &a.slots[i]
		if s.live {
			out = append(out, makeHandle(uint32(i), s.gen))
		}
	}
	return out
}

// each walks the list from head (MRU) to tail (LRU).
func (a *arena[K, V]) each(fn func(h handle, s *slot[K, V])) {
	for cur := a.head; cur != nilHandle; {
		s := a.at(cur)
		next := s.next
		fn(cur, s)
		cur = next
	}
}
