package cache

import (
	"context"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/mkorolev/wikiatlas/internal/singleflight"
	"github.com/mkorolev/wikiatlas/internal/util"
	"github.com/mkorolev/wikiatlas/policy/lru"
)

// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
var ErrNoLoader = errorsNew("cache: no Loader provided")

// lightweight local errors.New to avoid importing std 'errors' everywhere
func errorsNew(s string) error { return &strErr{s} }

type strErr struct{ s string }

func (e *strErr) Error() string { return e.s }

// cache is a sharded in-memory KV store with a pluggable eviction policy.
// All methods are safe for concurrent use by multiple goroutines.
type cache[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	closed atomic.Bool

	opt Options[K, V]

	// sweepStop cancels the periodic sweep goroutine; nil when no sweep runs.
	sweepStop chan struct{}
	sweepDone chan struct{}

	// singleflight group for coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group[K, V]
}

// New constructs a cache with the provided Options.
// Defaults:
//   - nil Metrics  -> NoopMetrics
//   - nil Policy   -> LRU
//   - Shards <= 0  -> auto, rounded up to the next power of two
//
// When SweepInterval > 0, New also starts the periodic sweep task;
// the caller owns its lifetime and must stop it with Close.
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Capacity <= 0 {
		panic("Capacity must be > 0")
	}
	// default Metrics
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	// default Policy: LRU
	if opt.Policy == nil {
		opt.Policy = lru.New[K, V]()
	}

	// number of shards -> power of two
	sh := opt.Shards
	if sh <= 0 {
		auto := 2 * runtime.GOMAXPROCS(0)
		sh = int(util.NextPow2(uint64(auto)))
		if sh < 1 {
			sh = 1
		}
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}

	// Never run more shards than entries: every shard must own at least
	// one slot or Capacity stops being a global bound.
	for sh > 1 && sh > opt.Capacity {
		sh /= 2
	}

	cs := make([]*shard[K, V], sh)
	// Per-shard caps sum to exactly opt.Capacity; the first Capacity%sh
	// shards carry the remainder.
	base := opt.Capacity / sh
	extra := opt.Capacity % sh
	for i := 0; i < sh; i++ {
		perShardCap := base
		if i < extra {
			perShardCap++
		}
		cs[i] = newShard[K, V](perShardCap, opt.Policy, opt)
	}

	c := &cache[K, V]{
		shards: cs,
		hash:   util.Fnv64a[K], // fast non-crypto hash for sharding
		opt:    opt,            // keep Options for TTL/Cost/Loader/Metrics
	}

	if opt.SweepInterval > 0 {
		c.sweepStop = make(chan struct{})
		c.sweepDone = make(chan struct{})
		go c.sweepLoop(opt.SweepInterval)
	}

	// return pointer-to-impl as the interface (avoids unexported-return lint)
	return c
}

// ---- Cache[K,V] implementation ----

// Add inserts k→v only if absent, using DefaultTTL if set.
// Returns false if the key already exists (no update is performed).
func (c *cache[K, V]) Add(k K, v V) bool {
	if c.closed.Load() {
		return false
	}
	s := c.getShard(k)
	exp := c.defaultDeadline()
	cost := c.costOf(v)
	return s.Add(k, v, exp, cost)
}

// Set inserts or updates k→v, using DefaultTTL if set,
// and promotes the entry according to the active policy.
func (c *cache[K, V]) Set(k K, v V) {
	if c.closed.Load() {
		return
	}
	s := c.getShard(k)
	exp := c.defaultDeadline()
	cost := c.costOf(v)
	s.Set(k, v, exp, cost)
}

// SetWithTTL inserts or updates k→v with a per-key TTL (relative duration).
// A non-positive ttl disables expiration for this entry.
func (c *cache[K, V]) SetWithTTL(k K, v V, ttl time.Duration) {
	if c.closed.Load() {
		return
	}
	s := c.getShard(k)
	cost := c.costOf(v)
	s.Set(k, v, c.deadline(ttl), cost)
}

// Get returns the value for k and a presence flag.
// On hit, the entry is promoted and its access statistics updated.
func (c *cache[K, V]) Get(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.getShard(k).Get(k)
}

// Contains reports whether k is present and fresh, removing an expired
// entry on detection. Unlike Get it leaves access statistics untouched.
func (c *cache[K, V]) Contains(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Contains(k)
}

// Remove deletes k if present and returns true on success.
func (c *cache[K, V]) Remove(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Remove(k)
}

// Purge removes all entries from all shards.
func (c *cache[K, V]) Purge() {
	if c.closed.Load() {
		return
	}
	for _, s := range c.shards {
		s.Purge()
	}
}

// Len returns the total number of resident entries across all shards.
func (c *cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

// Stats aggregates per-shard snapshots. Expired-but-unswept entries are
// counted in both Size and ExpiredCount; nothing is deleted.
func (c *cache[K, V]) Stats() Stats {
	var (
		agg        Stats
		accessSum  int64
		oldestUnix int64
		newestUnix int64
	)
	for _, s := range c.shards {
		st := s.stats()
		agg.Size += st.size
		agg.ExpiredCount += st.expired
		accessSum += st.accessTotal
		if st.oldestUnix != 0 && (oldestUnix == 0 || st.oldestUnix < oldestUnix) {
			oldestUnix = st.oldestUnix
		}
		if st.newestUnix > newestUnix {
			newestUnix = st.newestUnix
		}
	}
	if agg.Size > 0 {
		agg.AvgAccessCount = float64(accessSum) / float64(agg.Size)
	}
	if oldestUnix != 0 {
		agg.OldestEntryTime = time.Unix(0, oldestUnix)
	}
	if newestUnix != 0 {
		agg.NewestEntryTime = time.Unix(0, newestUnix)
	}
	return agg
}

// Close marks the cache as closed and stops the periodic sweep, waiting for
// an in-progress pass to finish. No sweep tick fires after Close returns.
// Future operations are ignored. Safe to call more than once.
func (c *cache[K, V]) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.sweepStop != nil {
		close(c.sweepStop)
		<-c.sweepDone
	}
	return nil
}

// GetOrLoad returns the value for k; on miss it loads via Options.Loader,
// coalescing concurrent loads for the same key (singleflight).
// If no Loader is configured, returns ErrNoLoader.
func (c *cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	// fast path
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	if c.opt.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	// singleflight: exactly one real load for the key
	return c.sf.Do(ctx, k, func() (V, error) {
		// double-check after flight join
		if v, ok := c.Get(k); ok {
			return v, nil
		}
		v, err := c.opt.Loader(ctx, k)
		if err == nil {
			c.Set(k, v)
		}
		return v, err
	})
}

// ---- sweep ----

// sweepLoop runs SweepExpired over all shards on a fixed interval.
// Passes run synchronously inside the loop, so a sweep never overlaps
// with itself. The loop exits when sweepStop is closed.
func (c *cache[K, V]) sweepLoop(interval time.Duration) {
	defer close(c.sweepDone)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.Sweep()
		case <-c.sweepStop:
			return
		}
	}
}

// Sweep removes every expired entry immediately and returns how many were
// removed. It is the same pass the periodic task runs; exposed for tests
// and operator tooling.
func (c *cache[K, V]) Sweep() int {
	removed := 0
	for _, s := range c.shards {
		removed += s.SweepExpired()
	}
	return removed
}

// ---- helpers ----

// getShard picks a shard by hashing the key and masking with len-1.
// len(c.shards) is guaranteed to be a power of two.
func (c *cache[K, V]) getShard(k K) *shard[K, V] {
	h := c.hash(k)
	idx := int(h) & (len(c.shards) - 1)
	return c.shards[idx]
}

// defaultDeadline returns an absolute deadline based on DefaultTTL.
func (c *cache[K, V]) defaultDeadline() int64 {
	if c.opt.DefaultTTL <= 0 {
		return 0
	}
	return c.deadline(c.opt.DefaultTTL)
}

// deadline converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration).
func (c *cache[K, V]) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	now := time.Now().UnixNano()
	if c.opt.Clock != nil {
		now = c.opt.Clock.NowUnixNano()
	}
	return now + int64(ttl)
}

// costOf computes the per-entry cost (clamped to int32 range).
func (c *cache[K, V]) costOf(v V) int32 {
	if c.opt.Cost == nil {
		return 0
	}
	iv := c.opt.Cost(v)
	if iv < 0 {
		iv = 0
	}
	// clamp to int32 to avoid overflow
	if iv > math.MaxInt32 {
		iv = math.MaxInt32
	}
	return int32(iv)
}
