package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mkorolev/wikiatlas/cache"
	"github.com/mkorolev/wikiatlas/geo"
	"github.com/mkorolev/wikiatlas/wiki"
)

// queryResponse is the envelope both search routes return.
type queryResponse struct {
	Articles        []wiki.Article `json:"articles"`
	Count           int            `json:"count"`
	ServedFromCache bool           `json:"served_from_cache"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleSearch serves GET /api/search?q=...&limit=...&year=...
// Free-text search; coordinates are optional refinements.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params, ok := s.queryParams(w, r)
	if !ok {
		return
	}
	s.serveQuery(w, r, params)
}

// handleArticles serves GET /api/articles?lat=..&lon=..&radius=..
// Geographic search used as the map viewport moves.
func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	params, ok := s.queryParams(w, r)
	if !ok {
		return
	}
	if params.Center == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "lat and lon are required",
		})
		return
	}
	s.serveQuery(w, r, params)
}

// queryParams parses the shared query parameters. Numeric parse failures
// are a client error and reported immediately.
func (s *Server) queryParams(w http.ResponseWriter, r *http.Request) (wiki.Params, bool) {
	q := r.URL.Query()
	params := wiki.Params{Query: q.Get("q")}

	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr != "" || lonStr != "" {
		lat, err1 := strconv.ParseFloat(latStr, 64)
		lon, err2 := strconv.ParseFloat(lonStr, 64)
		if err1 != nil || err2 != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lat/lon"})
			return wiki.Params{}, false
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lat/lon out of range"})
			return wiki.Params{}, false
		}
		params.Center = &geo.Point{Lat: lat, Lon: lon}
		params.RadiusM = 5_000 // viewport default
	}

	if v := q.Get("radius"); v != "" {
		radius, err := strconv.ParseFloat(v, 64)
		if err != nil || radius <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid radius"})
			return wiki.Params{}, false
		}
		params.RadiusM = radius
	}
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid year"})
			return wiki.Params{}, false
		}
		params.Year = year
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > 500 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return wiki.Params{}, false
		}
		params.Limit = limit
	}
	return params, true
}

func (s *Server) serveQuery(w http.ResponseWriter, r *http.Request, params wiki.Params) {
	result, err := s.svc.GetOrFetch(r.Context(), params)
	switch {
	case errors.Is(err, wiki.ErrInvalidParams):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "provide a search query or map coordinates",
		})
		return
	case errors.Is(err, wiki.ErrUpstreamUnavailable):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error: "Wikipedia is unavailable right now, please try again shortly",
		})
		return
	case err != nil:
		s.log.Error().Err(err).Msg("query failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Articles:        result.Articles,
		Count:           len(result.Articles),
		ServedFromCache: result.ServedFromCache,
	})
}

// handleHealth reports liveness plus cache diagnostics.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	caches := map[string]any{
		"response": cacheStatsPayload(s.resp.Stats()),
		"details":  cacheStatsPayload(s.details.Stats()),
	}
	if s.coverage != nil {
		caches["coverage_entries"] = s.coverage.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "wikiatlas",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"caches":    caches,
	})
}

func cacheStatsPayload(st cache.Stats) map[string]any {
	return map[string]any{
		"size":             st.Size,
		"avg_access_count": st.AvgAccessCount,
		"expired_count":    st.ExpiredCount,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
