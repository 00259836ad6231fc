// Package cache implements a reference-counted, bounded object cache.
//
// Goals for this package:
//   - Keep key lookup independent of eviction order (bucket.Table + handle arena)
//   - Never evict or trim an entry that is pinned by in-flight work
//   - Bound Put latency: at most one eviction per insertion
//   - Trim idle entries in batches, with one listener call per sweep
//   - Own and cleanly stop the sweeper goroutine (no leaks on shutdown)
package cache
