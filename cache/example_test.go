package cache_test

import (
	"fmt"
	"time"

	"github.com/mkorolev/wikiatlas/cache"
)

// Basic usage: LRU by default, no TTL unless asked for.
func Example() {
	c := cache.New[string, string](cache.Options[string, string]{
		Capacity: 5,
	})
	defer func() { _ = c.Close() }()

	// Add: insert only if key is absent (no update). Returns false on duplicate.
	fmt.Println("Add a=1  ->", c.Add("a", "1")) // true
	fmt.Println("Add a=2  ->", c.Add("a", "2")) // false (duplicate)

	// Set: insert or update (promotes according to the policy).
	c.Set("b", "2")
	c.Set("a", "1*")

	if v, ok := c.Get("a"); ok {
		fmt.Println("Get a   ->", v)
	}
	if _, ok := c.Get("zzz"); !ok {
		fmt.Println("Get zzz -> miss")
	}

	fmt.Println("Remove b ->", c.Remove("b"))

	// Output:
	// Add a=1  -> true
	// Add a=2  -> false
	// Get a   -> 1*
	// Get zzz -> miss
	// Remove b -> true
}

// Per-key TTL with a periodic sweep reclaiming expired entries in the
// background.
func Example_ttl() {
	c := cache.New[string, int](cache.Options[string, int]{
		Capacity:      100,
		DefaultTTL:    time.Minute,
		SweepInterval: 30 * time.Second,
	})
	defer func() { _ = c.Close() }()

	c.Set("session", 1)                     // expires in a minute
	c.SetWithTTL("flash", 2, 5*time.Second) // expires in five seconds
	c.SetWithTTL("pinned", 3, 0)            // never expires

	st := c.Stats()
	fmt.Println("resident:", st.Size)

	// Output:
	// resident: 3
}
