package wiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/mkorolev/wikiatlas/geo"
	"github.com/mkorolev/wikiatlas/geocache"
)

// fakeAPI answers search, geosearch, and detail calls with canned results
// and counts upstream traffic.
type fakeAPI struct {
	calls     int64
	down      atomic.Bool // respond 500 to everything
	search    string      // JSON body for list=search
	geosearch string      // JSON body for list=geosearch
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&f.calls, 1)
	if f.down.Load() {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	q := r.URL.Query()
	switch {
	case q.Get("list") == "search":
		fmt.Fprint(w, f.search)
	case q.Get("list") == "geosearch":
		fmt.Fprint(w, f.geosearch)
	case q.Get("pageids") != "":
		fmt.Fprint(w, detailPagesJSON(q.Get("pageids")))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeAPI) count() int64 { return atomic.LoadInt64(&f.calls) }

func TestService_RejectsEmptyParams(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	svc, _ := newTestService(t, api)

	for _, p := range []Params{
		{},
		{Query: "   "},
	} {
		if _, err := svc.GetOrFetch(context.Background(), p); !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("params %+v: want ErrInvalidParams, got %v", p, err)
		}
	}
	if api.count() != 0 {
		t.Fatal("invalid params must not reach the upstream")
	}
}

// Text query: fetch once, then answer the same (differently spelled) query
// from the response cache.
func TestService_TextQueryCached(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{search: `{"query":{"search":[
		{"pageid":100,"title":"Eiffel Tower"}]}}`}
	svc, _ := newTestService(t, api)

	res, err := svc.GetOrFetch(context.Background(), Params{Query: "Eiffel Tower"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ServedFromCache {
		t.Fatal("first answer cannot come from the cache")
	}
	if len(res.Articles) != 1 || res.Articles[0].Extract != "E100" {
		t.Fatalf("articles must be detail-enriched: %+v", res.Articles)
	}
	fetched := api.count() // search + detail batch

	res2, err := svc.GetOrFetch(context.Background(), Params{Query: "  eiffel tower "})
	if err != nil {
		t.Fatal(err)
	}
	if !res2.ServedFromCache {
		t.Fatal("normalized repeat must be a cache hit")
	}
	if api.count() != fetched {
		t.Fatal("cache hit must not touch the upstream")
	}
}

// Geographic query with text narrows the geosearch result by title before
// enrichment; geosearch coordinates survive when details carry none.
func TestService_GeoQueryTitleFilter(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{geosearch: `{"query":{"geosearch":[
		{"pageid":1,"title":"Eiffel Tower","lat":48.8584,"lon":2.2945,"dist":100},
		{"pageid":2,"title":"Louvre","lat":48.8606,"lon":2.3376,"dist":900}]}}`}
	svc, _ := newTestService(t, api)

	c := center(48.86, 2.35)
	res, err := svc.GetOrFetch(context.Background(), Params{
		Query:   "eiffel",
		Center:  &c,
		RadiusM: 5_000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Articles) != 1 || res.Articles[0].PageID != 1 {
		t.Fatalf("title filter: want just Eiffel Tower, got %+v", res.Articles)
	}
	a := res.Articles[0]
	if a.Extract != "E1" {
		t.Fatalf("article must be detail-enriched: %+v", a)
	}
	if len(a.Coordinates) != 1 || a.Coordinates[0].Lat != 48.8584 {
		t.Fatalf("geosearch coordinates must be kept: %+v", a.Coordinates)
	}
}

// A narrower request inside an already-searched disk is answered from the
// coverage cache without touching the upstream.
func TestService_CoverageHit(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	svc, coverage := newTestService(t, api)

	c := center(48.86, 2.35)
	coverage.Store([]Article{
		{PageID: 1, Title: "Near", Coordinates: []geo.Point{{Lat: 48.861, Lon: 2.351}}},
		{PageID: 2, Title: "Far", Coordinates: []geo.Point{{Lat: 48.93, Lon: 2.35}}},
	}, geocache.Params{Center: c, RadiusM: 10_000})

	res, err := svc.GetOrFetch(context.Background(), Params{Center: &c, RadiusM: 2_000})
	if err != nil {
		t.Fatal(err)
	}
	if !res.ServedFromCache {
		t.Fatal("covered request must be a cache hit")
	}
	if len(res.Articles) != 1 || res.Articles[0].PageID != 1 {
		t.Fatalf("hit must be filtered to the request disk: %+v", res.Articles)
	}
	if api.count() != 0 {
		t.Fatalf("coverage hit must not touch the upstream, calls=%d", api.count())
	}

	// The hit was written through to the response cache.
	res2, err := svc.GetOrFetch(context.Background(), Params{Center: &c, RadiusM: 2_000})
	if err != nil || !res2.ServedFromCache || api.count() != 0 {
		t.Fatalf("repeat must stay cached: err=%v cached=%v calls=%d",
			err, res2.ServedFromCache, api.count())
	}
}

// A fetched geographic result seeds the coverage cache for narrower
// follow-up queries.
func TestService_StoresCoverage(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{geosearch: `{"query":{"geosearch":[
		{"pageid":1,"title":"Spot","lat":48.861,"lon":2.351,"dist":50}]}}`}
	svc, _ := newTestService(t, api)

	c := center(48.86, 2.35)
	if _, err := svc.GetOrFetch(context.Background(), Params{Center: &c, RadiusM: 5_000}); err != nil {
		t.Fatal(err)
	}
	fetched := api.count()

	// Different key (smaller radius) but inside the covered disk.
	narrow := center(48.861, 2.351)
	res, err := svc.GetOrFetch(context.Background(), Params{Center: &narrow, RadiusM: 1_000})
	if err != nil {
		t.Fatal(err)
	}
	if !res.ServedFromCache || api.count() != fetched {
		t.Fatalf("narrower query must be covered: cached=%v calls=%d",
			res.ServedFromCache, api.count())
	}
}

func TestService_UpstreamDown(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{search: `{"query":{"search":[{"pageid":7,"title":"Back"}]}}`}
	api.down.Store(true)
	svc, _ := newTestService(t, api)

	_, err := svc.GetOrFetch(context.Background(), Params{Query: "anything"})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("want ErrUpstreamUnavailable, got %v", err)
	}

	// Errors are not cached; recovery is visible on the next call.
	api.down.Store(false)
	res, err := svc.GetOrFetch(context.Background(), Params{Query: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ServedFromCache || len(res.Articles) != 1 {
		t.Fatalf("recovered fetch: %+v", res)
	}
}
