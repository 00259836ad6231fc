package cache

import "sync/atomic"

// Stats is a point-in-time view of cache counters. Individual counters are
// exact; the set as a whole is not a consistent snapshot.
type Stats struct {
	Hits   int64
	Misses int64

	// Size counts every entry, pinned or not. ListSize counts the unpinned
	// entries currently eligible for eviction.
	Size     int64
	ListSize int64

	// Evictions counts entries dropped by Put on overflow, Trims those
	// dropped by TrimExpired.
	Evictions int64
	Trims     int64

	Pins     int64
	Unpins   int64
	Removals int64
}

// HitRatio returns Hits / (Hits + Misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	trims     atomic.Int64
	pins      atomic.Int64
	unpins    atomic.Int64
	removals  atomic.Int64
}
