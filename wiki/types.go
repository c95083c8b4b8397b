// Package wiki implements the Wikipedia-facing core of wikiatlas: a
// rate-limited, retrying HTTP client for the MediaWiki Action API, batch
// article-detail fetching, deterministic cache-key derivation, and a
// Service that answers queries cache-first.
package wiki

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mkorolev/wikiatlas/geo"
)

// ErrUpstreamUnavailable is returned when the Wikipedia API could not be
// reached after the full retry budget. It is the only error class a caller
// should surface to end users.
var ErrUpstreamUnavailable = errors.New("wiki: upstream unavailable")

// ErrInvalidParams is returned for requests carrying neither a text query
// nor coordinates. Such requests are rejected before any cache or network
// activity.
var ErrInvalidParams = errors.New("wiki: request needs a query or coordinates")

// Article is a Wikipedia article as the map UI consumes it. Treated as an
// immutable value once received from upstream; caches hand out the slice
// by value and never mutate stored entries.
type Article struct {
	PageID      int64       `json:"page_id"`
	Title       string      `json:"title"`
	Extract     string      `json:"extract,omitempty"`
	Thumbnail   string      `json:"thumbnail,omitempty"`
	Coordinates []geo.Point `json:"coordinates,omitempty"`
	Link        string      `json:"link"`
}

// Location returns the article's primary coordinate pair, if it has one.
func (a Article) Location() (geo.Point, bool) {
	if len(a.Coordinates) == 0 {
		return geo.Point{}, false
	}
	return a.Coordinates[0], true
}

// pageLink builds the canonical article URL from a page id.
func pageLink(base string, id int64) string {
	return fmt.Sprintf("%s/?curid=%d", strings.TrimSuffix(base, "/w/api.php"), id)
}

// Params describes one logical map query: free-text search, geographic
// search, or both. Year narrows results to a display period and is part of
// cache identity; Limit bounds the result count.
type Params struct {
	Query   string     `json:"query,omitempty"`
	Center  *geo.Point `json:"center,omitempty"`
	RadiusM float64    `json:"radius_m,omitempty"`
	Year    int        `json:"year,omitempty"`
	Limit   int        `json:"limit,omitempty"`
}

// Validate rejects parameter sets that identify nothing to search for.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Query) == "" && p.Center == nil {
		return ErrInvalidParams
	}
	return nil
}

// CacheKey derives the exact-match response-cache key for p.
func (p Params) CacheKey() string {
	if p.Center != nil {
		return GeoKey(*p.Center, p.RadiusM, p.Query, p.Year, p.Limit)
	}
	return SearchKey(p.Query, p.Limit)
}
