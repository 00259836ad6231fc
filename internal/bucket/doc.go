// Package bucket implements a fixed-width open hash table with one lock per bucket.
//
// Each bucket is a singly-linked chain of (hash, key, value) nodes. The table
// only stores associations; it knows nothing about eviction order or
// reference counts. Callers that maintain global state on top of the table
// (see internal/cache) must take the bucket lock before any lock of their own.
//
// Operations on different buckets never contend. Operations on the same
// bucket are serialized by that bucket's mutex.
package bucket
