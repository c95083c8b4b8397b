package cache

import (
	"context"
	"time"
)

// Cache is a sharded, in-memory key/value cache interface.
// All methods are safe for concurrent use by multiple goroutines.
//
// Typical complexity for operations is amortized O(1):
// a map lookup plus constant-time list adjustments under a shard lock.
type Cache[K comparable, V any] interface {
	// Add inserts k→v only if k is not present.
	// It uses the cache's DefaultTTL (if any).
	// Returns false if the key already exists (no update is performed).
	Add(k K, v V) bool

	// Set inserts or updates k→v.
	// It uses the cache's DefaultTTL (if any), resets the entry's creation
	// time and access statistics, and promotes the entry according to the
	// active eviction policy (e.g., LRU).
	Set(k K, v V)

	// Get returns the value for k and a boolean flag indicating presence.
	// An expired entry is removed and reported as a miss.
	// On hit, the entry is promoted and its access statistics updated.
	Get(k K) (V, bool)

	// Contains reports whether k is present and fresh. Like Get it removes
	// an expired entry on detection, but it does not promote the entry or
	// touch its access statistics.
	Contains(k K) bool

	// Remove deletes k if present and returns true on success.
	Remove(k K) bool

	// Purge removes all entries from all shards.
	Purge()

	// Len returns the total number of resident entries across all shards,
	// including expired entries that have not been swept yet.
	Len() int

	// Stats returns a diagnostic snapshot aggregated across shards.
	// It counts expired-but-unswept entries without deleting them.
	Stats() Stats

	// Sweep removes every expired entry immediately and returns the number
	// removed. The periodic sweep task (Options.SweepInterval) runs the
	// same pass.
	Sweep() int

	// Close stops background workers (the periodic sweep, if configured)
	// and marks the cache closed. Safe to call more than once.
	Close() error

	// SetWithTTL inserts or updates k→v with a per-key TTL (relative duration).
	// A non-positive ttl disables expiration for this entry.
	SetWithTTL(k K, v V, ttl time.Duration)

	// GetOrLoad returns the value for k, loading it via Options.Loader on miss.
	// Concurrent loads for the same key are coalesced (singleflight).
	// If no Loader was configured, returns ErrNoLoader.
	GetOrLoad(ctx context.Context, k K) (V, error)
}

// Stats is a point-in-time diagnostic snapshot of a cache.
type Stats struct {
	// Size is the number of resident entries (expired-but-unswept included).
	Size int

	// AvgAccessCount is the mean access counter over resident entries.
	// Zero when the cache is empty.
	AvgAccessCount float64

	// ExpiredCount is the number of resident entries whose age exceeded
	// their TTL at the time of the call. They are counted, not deleted.
	ExpiredCount int

	// OldestEntryTime and NewestEntryTime are the extreme creation times
	// over resident entries. Zero time values when the cache is empty.
	OldestEntryTime time.Time
	NewestEntryTime time.Time
}
