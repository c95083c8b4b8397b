// Package geocache is a durable cache of geographic search results keyed
// by a coverage relation rather than exact parameter equality: an earlier,
// wider search can answer a new, narrower one when the new search disk
// lies entirely inside the old one.
//
// The cache persists its entry list as a single JSON blob through a
// BlobStore, mirroring the single-key durable storage the browser side of
// wikiatlas uses. Storage failures are never propagated: a missing,
// corrupt, or unwritable store degrades the cache to empty and the calling
// path falls through to a normal fetch.
package geocache

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkorolev/wikiatlas/geo"
)

// Params are the parameters a cached search was issued with; they define
// the coverage disk and the equality filters.
type Params struct {
	Center  geo.Point `json:"center"`
	RadiusM float64   `json:"radius_m"`
	Query   string    `json:"query,omitempty"`
	Year    int       `json:"year,omitempty"`
}

// Covers reports whether a search performed with p is guaranteed to
// contain every result of a search with req: req's disk must lie entirely
// inside p's disk (great-circle distance between centers no greater than
// the radius difference), and req's query/year must be absent or equal.
func (p Params) Covers(req Params) bool {
	if p.RadiusM < req.RadiusM {
		return false
	}
	if geo.Distance(p.Center, req.Center) > p.RadiusM-req.RadiusM {
		return false
	}
	if req.Query != "" && !strings.EqualFold(strings.TrimSpace(req.Query), strings.TrimSpace(p.Query)) {
		return false
	}
	if req.Year != 0 && req.Year != p.Year {
		return false
	}
	return true
}

// Entry is one stored search result set. Entries are immutable once
// stored; they leave the cache only through TTL expiry, capacity
// truncation, or Clear.
type Entry[A any] struct {
	Articles  []A       `json:"articles"`
	Params    Params    `json:"params"`
	Timestamp time.Time `json:"timestamp"`
}

// Options bound the cache. Zero values take the defaults below.
type Options struct {
	// TTL is the entry lifetime measured from Store time.
	TTL time.Duration

	// MaxEntries caps the stored entry count; storing past the cap drops
	// the oldest entries (by Timestamp), not the least recently used.
	MaxEntries int
}

const (
	defaultTTL        = 24 * time.Hour
	defaultMaxEntries = 50
)

// Cache answers "do we already have data covering this request" from a
// durable entry list. A is the article payload type; locate extracts a
// coordinate from an article for post-hit distance filtering (articles
// without coordinates are conservatively kept).
type Cache[A any] struct {
	mu     sync.Mutex
	store  BlobStore
	ttl    time.Duration
	max    int
	locate func(A) (geo.Point, bool)
	clock  func() time.Time
	log    zerolog.Logger
}

// New builds a coverage cache over store. locate may be nil, in which case
// no article is ever filtered out of a hit.
func New[A any](store BlobStore, opts Options, locate func(A) (geo.Point, bool), log zerolog.Logger) *Cache[A] {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if locate == nil {
		locate = func(A) (geo.Point, bool) { return geo.Point{}, false }
	}
	return &Cache[A]{
		store:  store,
		ttl:    opts.TTL,
		max:    opts.MaxEntries,
		locate: locate,
		clock:  time.Now,
		log:    log,
	}
}

// FindCovering scans stored entries newest-first and returns the articles
// of the first entry whose parameters cover req, filtered to req's disk:
// articles with a known location farther than req.RadiusM from req.Center
// are dropped, articles without coordinates are kept.
func (c *Cache[A]) FindCovering(req Params) ([]A, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.loadValidLocked() {
		if !e.Params.Covers(req) {
			continue
		}
		out := make([]A, 0, len(e.Articles))
		for _, a := range e.Articles {
			if p, ok := c.locate(a); ok && geo.Distance(p, req.Center) > req.RadiusM {
				continue
			}
			out = append(out, a)
		}
		return out, true
	}
	return nil, false
}

// Store appends a new entry stamped with the current time. Identical
// (articles, params) pairs produce distinct entries; Store never dedupes.
// When the entry count exceeds MaxEntries the oldest entries are dropped.
func (c *Cache[A]) Store(articles []A, p Params) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.loadValidLocked()
	entries = append(entries, Entry[A]{
		Articles:  articles,
		Params:    p,
		Timestamp: c.clock(),
	})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if len(entries) > c.max {
		entries = entries[:c.max]
	}
	c.saveLocked(entries)
}

// Clear removes all entries from durable storage.
func (c *Cache[A]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Delete(); err != nil {
		c.log.Warn().Err(err).Msg("geocache: clear failed")
	}
}

// Len reports the number of stored, unexpired entries.
func (c *Cache[A]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loadValidLocked())
}

// loadValidLocked reads the blob, drops expired entries, and persists the
// removal when anything was dropped. Every storage failure degrades to an
// empty list; a corrupt blob is additionally replaced with an empty valid
// one so the next load is clean.
func (c *Cache[A]) loadValidLocked() []Entry[A] {
	data, err := c.store.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.Warn().Err(err).Msg("geocache: load failed, treating cache as empty")
		}
		return nil
	}

	var entries []Entry[A]
	if err := json.Unmarshal(data, &entries); err != nil {
		c.log.Warn().Err(err).Msg("geocache: corrupt blob, resetting")
		c.saveLocked(nil)
		return nil
	}

	now := c.clock()
	valid := entries[:0]
	for _, e := range entries {
		if now.Sub(e.Timestamp) > c.ttl {
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) != len(entries) {
		c.saveLocked(valid)
	}
	return valid
}

// saveLocked serializes and persists entries; failures are logged and
// swallowed (the cache degrades, the caller's request still succeeds).
func (c *Cache[A]) saveLocked(entries []Entry[A]) {
	if entries == nil {
		entries = []Entry[A]{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		c.log.Warn().Err(err).Msg("geocache: marshal failed")
		return
	}
	if err := c.store.Save(data); err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			c.log.Warn().Err(err).Msg("geocache: save failed")
		}
	}
}

// SetClock overrides the time source; tests only.
func (c *Cache[A]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = now
}
