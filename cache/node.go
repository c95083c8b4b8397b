package cache

// node is an intrusive doubly linked list element owned by a shard.
// It stores the key/value alongside list links and metadata used by
// eviction policies, TTL accounting, and access statistics.
type node[K comparable, V any] struct {
	key K
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node[K, V]
	next *node[K, V]

	// created is the insertion time in UnixNano; Set (including overwrite)
	// resets it. Expiry is derived from created: exp = created + ttl.
	// Zero exp means "no TTL".
	created int64
	exp     int64

	// lastAccess is updated on every Get hit (and on Set).
	// accessCount starts at 1 on Set and grows by 1 per Get hit.
	// Both are diagnostic; LRU ordering itself lives in the list.
	lastAccess  int64
	accessCount int64

	// Logical "cost" used when MaxCost is enabled.
	// Entries are evicted until both length and cost limits are satisfied.
	cost int32
}

// Key returns the node key (part of policy.Node interface).
func (n *node[K, V]) Key() K { return n.key }

// Value returns a pointer to the stored value (part of policy.Node interface).
// NOTE: callers must only read/write through this pointer while holding the
// shard lock; otherwise data races may occur.
func (n *node[K, V]) Value() *V { return &n.val }
