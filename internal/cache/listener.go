package cache

// OverflowListener is notified when the cache drops entries on its own.
//
// Both callbacks run synchronously on the goroutine that caused the drop,
// after the cache has finished unlinking and with no cache lock held. A
// listener may call back into the cache. Panics propagate to the caller of
// Put or TrimExpired.
type OverflowListener[K comparable] interface {
	// OnOverflow is called once per entry evicted by Put when the LRU list
	// exceeds capacity.
	OnOverflow(key K)

	// OnBatchOverflow is called exactly once per TrimExpired call with the
	// keys it removed, oldest first. keys is empty when nothing expired.
	OnBatchOverflow(keys []K)
}

// ListenerFuncs adapts plain functions to OverflowListener. Nil fields are
// skipped.
type ListenerFuncs[K comparable] struct {
	Overflow      func(key K)
	BatchOverflow func(keys []K)
}

func (f ListenerFuncs[K]) OnOverflow(key K) {
	if f.Overflow != nil {
		f.Overflow(key)
	}
}

func (f ListenerFuncs[K]) OnBatchOverflow(keys []K) {
	if f.BatchOverflow != nil {
		f.BatchOverflow(keys)
	}
}
