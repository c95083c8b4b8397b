package wiki

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mkorolev/wikiatlas/cache"
	"github.com/mkorolev/wikiatlas/geo"
	"github.com/mkorolev/wikiatlas/geocache"
	"github.com/mkorolev/wikiatlas/internal/singleflight"
)

// Result is a query answer plus its provenance. ServedFromCache is true
// both for exact-key response-cache hits and for coverage-cache hits.
type Result struct {
	Articles        []Article `json:"articles"`
	ServedFromCache bool      `json:"served_from_cache"`
}

// Service answers map queries cache-first: exact-key response cache, then
// geographic coverage cache, then the upstream API. Concurrent identical
// queries are coalesced so a burst of cache misses produces one upstream
// call.
//
// The caches are injected, not owned: the process constructs them once in
// main with explicit lifetimes and closes them on shutdown.
type Service struct {
	client   *Client
	resp     cache.Cache[string, []Article]
	details  cache.Cache[string, []Article]
	coverage *geocache.Cache[Article]
	log      zerolog.Logger

	sf singleflight.Group[string, Result]
}

// NewService wires a Service. coverage may be nil when no durable geo
// cache is configured; the service then skips the coverage lookup.
func NewService(
	client *Client,
	resp cache.Cache[string, []Article],
	details cache.Cache[string, []Article],
	coverage *geocache.Cache[Article],
	log zerolog.Logger,
) *Service {
	return &Service{
		client:   client,
		resp:     resp,
		details:  details,
		coverage: coverage,
		log:      log,
	}
}

// GetOrFetch resolves p against the caches and, on a full miss, the
// upstream API. Invalid parameters fail before any cache or network
// activity. Upstream failure after retry exhaustion is the only error
// returned; everything else degrades internally.
func (s *Service) GetOrFetch(ctx context.Context, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	p = p.normalized()

	key := p.CacheKey()
	if articles, ok := s.resp.Get(key); ok {
		return Result{Articles: articles, ServedFromCache: true}, nil
	}

	// Coalesce concurrent misses for the same key: one flight fetches,
	// the rest share its result.
	return s.sf.Do(ctx, key, func() (Result, error) {
		if articles, ok := s.resp.Get(key); ok {
			return Result{Articles: articles, ServedFromCache: true}, nil
		}

		if p.Center != nil && s.coverage != nil {
			if articles, ok := s.coverage.FindCovering(s.coverageParams(p)); ok {
				s.log.Debug().Str("key", key).Int("articles", len(articles)).
					Msg("coverage cache hit")
				// Write through so the next identical query is an exact hit.
				s.resp.Set(key, articles)
				return Result{Articles: articles, ServedFromCache: true}, nil
			}
		}

		articles, err := s.fetch(ctx, p)
		if err != nil {
			return Result{}, err
		}

		s.resp.Set(key, articles)
		if p.Center != nil && s.coverage != nil {
			s.coverage.Store(articles, s.coverageParams(p))
		}
		return Result{Articles: articles}, nil
	})
}

// fetch performs the upstream search and enriches candidates with full
// details. A geographic query with text narrows the geosearch result by
// title; a pure text query goes through the search endpoint.
func (s *Service) fetch(ctx context.Context, p Params) ([]Article, error) {
	var (
		candidates []Article
		err        error
	)
	if p.Center != nil {
		candidates, err = s.client.GeoSearch(ctx, *p.Center, p.RadiusM, p.Limit)
		if err == nil && p.Query != "" {
			candidates = filterByTitle(candidates, p.Query)
		}
	} else {
		candidates, err = s.client.Search(ctx, p.Query, p.Limit)
	}
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Article{}, nil
	}

	ids := make([]int64, len(candidates))
	for i, a := range candidates {
		ids[i] = a.PageID
	}

	detailed := s.FetchDetails(ctx, ids)

	// Candidates that detail fetching could not resolve at all keep their
	// search-result form (title + coordinates from geosearch).
	byID := make(map[int64]Article, len(detailed))
	for _, a := range detailed {
		byID[a.PageID] = a
	}
	out := make([]Article, 0, len(candidates))
	for _, cand := range candidates {
		a, ok := byID[cand.PageID]
		if !ok {
			out = append(out, cand)
			continue
		}
		// Geosearch coordinates are authoritative for placement when the
		// detail lookup returned none.
		if len(a.Coordinates) == 0 {
			a.Coordinates = cand.Coordinates
		}
		if a.Title == "" {
			a.Title = cand.Title
		}
		out = append(out, a)
	}
	return out, nil
}

// coverageParams maps query params onto the coverage relation, recording
// the radius actually searched (the upstream clamp applies to both).
func (s *Service) coverageParams(p Params) geocache.Params {
	r := p.RadiusM
	if r > MaxGeoRadiusMeters {
		r = MaxGeoRadiusMeters
	}
	return geocache.Params{
		Center:  *p.Center,
		RadiusM: r,
		Query:   p.Query,
		Year:    p.Year,
	}
}

// normalized trims and lower-cases the query text so that equivalent
// requests share cache identity.
func (p Params) normalized() Params {
	p.Query = strings.ToLower(strings.TrimSpace(p.Query))
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	return p
}

func filterByTitle(articles []Article, query string) []Article {
	q := strings.ToLower(query)
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if strings.Contains(strings.ToLower(a.Title), q) {
			out = append(out, a)
		}
	}
	return out
}

// ArticleLocation adapts Article to the geocache locate callback.
func ArticleLocation(a Article) (geo.Point, bool) {
	return a.Location()
}
