package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mkorolev/wikiatlas/cache"
	"github.com/mkorolev/wikiatlas/geocache"
	"github.com/mkorolev/wikiatlas/wiki"
)

// newTestServer wires a full stack over a fake Action API handler and
// returns the HTTP test server for the public surface.
func newTestServer(t *testing.T, upstream http.Handler) *httptest.Server {
	t.Helper()

	api := httptest.NewServer(upstream)
	t.Cleanup(api.Close)

	client := wiki.NewClient(wiki.Config{
		BaseURL:     api.URL + "/w/api.php",
		MaxAttempts: 1,
		RateLimit:   1_000,
		RateBurst:   1_000,
		Logger:      zerolog.Nop(),
	})
	resp := cache.New[string, []wiki.Article](cache.Options[string, []wiki.Article]{Capacity: 64})
	t.Cleanup(func() { _ = resp.Close() })
	details := cache.New[string, []wiki.Article](cache.Options[string, []wiki.Article]{Capacity: 64})
	t.Cleanup(func() { _ = details.Close() })
	coverage := geocache.New[wiki.Article](&geocache.MemStore{}, geocache.Options{}, wiki.ArticleLocation, zerolog.Nop())

	svc := wiki.NewService(client, resp, details, coverage, zerolog.Nop())
	srv := New(svc, resp, details, coverage, zerolog.Nop(), Options{})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// fakeUpstream serves one searchable article plus its details.
func fakeUpstream() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("list") == "search":
			fmt.Fprint(w, `{"query":{"search":[{"pageid":42,"title":"Notre-Dame"}]}}`)
		case q.Get("list") == "geosearch":
			fmt.Fprint(w, `{"query":{"geosearch":[
				{"pageid":42,"title":"Notre-Dame","lat":48.853,"lon":2.3499,"dist":25}]}}`)
		case q.Get("pageids") != "":
			fmt.Fprint(w, `{"query":{"pages":{"42":{"pageid":42,"title":"Notre-Dame","extract":"A cathedral."}}}}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestSearchEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fakeUpstream())

	var body struct {
		Articles        []wiki.Article `json:"articles"`
		Count           int            `json:"count"`
		ServedFromCache bool           `json:"served_from_cache"`
	}
	if code := getJSON(t, ts.URL+"/api/search?q=notre-dame", &body); code != http.StatusOK {
		t.Fatalf("status want 200, got %d", code)
	}
	if body.Count != 1 || len(body.Articles) != 1 {
		t.Fatalf("want one article, got %+v", body)
	}
	if body.ServedFromCache {
		t.Fatal("first query cannot be served from cache")
	}
	if body.Articles[0].Extract != "A cathedral." {
		t.Fatalf("article must be enriched: %+v", body.Articles[0])
	}

	// Repeat is a cache hit and says so.
	if code := getJSON(t, ts.URL+"/api/search?q=Notre-Dame", &body); code != http.StatusOK {
		t.Fatalf("status want 200, got %d", code)
	}
	if !body.ServedFromCache {
		t.Fatal("repeat must be served from cache")
	}
}

func TestSearchEndpoint_Validation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fakeUpstream())

	cases := []struct {
		path string
		want int
	}{
		{"/api/search", http.StatusBadRequest},             // neither query nor coords
		{"/api/search?q=%20%20", http.StatusBadRequest},    // blank query
		{"/api/search?q=x&lat=abc&lon=2", http.StatusBadRequest},
		{"/api/search?q=x&lat=91&lon=2", http.StatusBadRequest},
		{"/api/search?q=x&radius=-5", http.StatusBadRequest},
		{"/api/search?q=x&year=abc", http.StatusBadRequest},
		{"/api/search?q=x&limit=0", http.StatusBadRequest},
		{"/api/search?q=x&limit=9999", http.StatusBadRequest},
		{"/api/articles", http.StatusBadRequest}, // viewport route needs coords
		{"/api/articles?lat=48.85&lon=2.35", http.StatusOK},
	}
	for _, tc := range cases {
		var e struct {
			Error string `json:"error"`
		}
		if code := getJSON(t, ts.URL+tc.path, &e); code != tc.want {
			t.Errorf("%s: status want %d, got %d (%s)", tc.path, tc.want, code, e.Error)
		}
	}
}

func TestUpstreamFailureMapsTo502(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	var e struct {
		Error string `json:"error"`
	}
	if code := getJSON(t, ts.URL+"/api/search?q=anything", &e); code != http.StatusBadGateway {
		t.Fatalf("status want 502, got %d", code)
	}
	if !strings.Contains(e.Error, "Wikipedia") {
		t.Fatalf("error message must name the upstream, got %q", e.Error)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fakeUpstream())

	var body struct {
		Status string         `json:"status"`
		Caches map[string]any `json:"caches"`
	}
	if code := getJSON(t, ts.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("status want 200, got %d", code)
	}
	if body.Status != "ok" {
		t.Fatalf("status field want ok, got %q", body.Status)
	}
	for _, k := range []string{"response", "details", "coverage_entries"} {
		if _, ok := body.Caches[k]; !ok {
			t.Errorf("caches payload missing %q: %v", k, body.Caches)
		}
	}
}

func TestEvents(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fakeUpstream())

	// Bad submissions.
	for _, payload := range []string{
		"{not json",
		`{"title":"  ","lat":1,"lon":2}`,
		`{"title":"x","lat":123,"lon":2}`,
	} {
		resp, err := http.Post(ts.URL+"/api/events", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %q: status want 400, got %d", payload, resp.StatusCode)
		}
	}

	// A valid submission is assigned an id and listed afterwards.
	resp, err := http.Post(ts.URL+"/api/events", "application/json",
		strings.NewReader(`{"title":"Storming of the Bastille","lat":48.853,"lon":2.369,"year":1789}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status want 201, got %d", resp.StatusCode)
	}
	var ev Event
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID == "" || ev.Year != 1789 {
		t.Fatalf("created event: %+v", ev)
	}

	var list struct {
		Events []Event `json:"events"`
	}
	if code := getJSON(t, ts.URL+"/api/events", &list); code != http.StatusOK {
		t.Fatalf("list status want 200, got %d", code)
	}
	if len(list.Events) != 1 || list.Events[0].ID != ev.ID {
		t.Fatalf("listed events: %+v", list.Events)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fakeUpstream())

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status want 200, got %d", resp.StatusCode)
	}
}
