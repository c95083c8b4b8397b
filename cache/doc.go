// Package cache provides a fast, generic, sharded in-memory cache with
// pluggable eviction policies (LRU by default), TTL expiry, a periodic
// cancellable sweep, optional singleflight loading, lightweight metrics
// hooks, and cost-based capacity.
//
// wikiatlas runs two instances of this cache: one in front of the Wikipedia
// search/geosearch endpoints (exact-key response cache) and one for batch
// article-detail results (keyed by the sorted page-id list).
//
// Design
//
//   - Concurrency: the cache is split into shards, each protected by an
//     RWMutex. The default shard count is chosen by a heuristic and is a
//     power of two. Sharding reduces contention while keeping memory
//     overhead small.
//
//   - Storage: each shard keeps a map[K]*node for lookups and an intrusive
//     MRU↔LRU doubly linked list for ordering. All operations are O(1)
//     expected.
//
//   - Policies: eviction policy is pluggable via the policy package.
//     LRU is the default. A 2Q policy is provided (resists scan pollution
//     from burst workloads such as rapid map panning).
//
//   - TTL: entries expire when their age since insertion exceeds the TTL.
//     Set resets the insertion time; Get does not. Expiration is enforced
//     lazily on Get/Contains and eagerly by the periodic sweep.
//
//   - Sweep: when Options.SweepInterval > 0, a background task scans all
//     shards on that interval and removes every expired entry, bounding
//     memory growth from entries that are never read again. Close stops
//     the sweep deterministically; no ticks fire after Close returns.
//
//   - Stats: every entry tracks creation time, last-access time, and an
//     access counter. Stats() aggregates them into a diagnostic snapshot
//     without mutating the cache.
//
//   - GetOrLoad: coalesces concurrent loads for the same key using
//     singleflight. If Loader is nil, GetOrLoad returns ErrNoLoader.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     By default NoopMetrics is used; plug the prom adapter to export
//     Prometheus metrics.
//
// Basic usage
//
//	// A response cache: 1k entries, 5 minute TTL, swept every 2 minutes.
//	c := cache.New[string, []byte](cache.Options[string, []byte]{
//	    Capacity:      1_000,
//	    DefaultTTL:    5 * time.Minute,
//	    SweepInterval: 2 * time.Minute,
//	})
//	defer c.Close()
//
//	c.Set("search:q=alamo&limit=50", payload)
//	if v, ok := c.Get("search:q=alamo&limit=50"); ok {
//	    _ = v // serve from cache
//	}
//
// Thread-safety & complexity
//
// All methods on Cache are safe for concurrent use. Typical operation cost
// is O(1) expected time: one map access and a constant amount of pointer
// fixes. Eviction work is also O(1) per removed item; Stats and the sweep
// are O(n) scans.
package cache
