package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mkorolev/wikiatlas/geo"
)

// MaxGeoRadiusMeters is the upstream cap on geosearch radius.
const MaxGeoRadiusMeters = 10_000

// minGeoRadiusMeters is the smallest radius the Action API accepts.
const minGeoRadiusMeters = 10

// DefaultLimit bounds result counts when the caller does not specify one.
const DefaultLimit = 50

type searchResponse struct {
	Query struct {
		Search []struct {
			PageID int64  `json:"pageid"`
			Title  string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type geoSearchResponse struct {
	Query struct {
		GeoSearch []struct {
			PageID int64   `json:"pageid"`
			Title  string  `json:"title"`
			Lat    float64 `json:"lat"`
			Lon    float64 `json:"lon"`
			Dist   float64 `json:"dist"`
		} `json:"geosearch"`
	} `json:"query"`
}

// Search runs a free-text search and returns candidate articles in the
// upstream relevance order (order matters for display priority downstream).
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "search")
	q.Set("srsearch", query)
	q.Set("srlimit", strconv.Itoa(limit))

	body, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", ErrUpstreamUnavailable, err)
	}

	articles := make([]Article, 0, len(resp.Query.Search))
	for _, s := range resp.Query.Search {
		articles = append(articles, Article{
			PageID: s.PageID,
			Title:  s.Title,
			Link:   pageLink(c.base, s.PageID),
		})
	}
	return articles, nil
}

// GeoSearch returns articles located within radiusM meters of center,
// nearest first. The radius is clamped to the upstream bounds.
func (c *Client) GeoSearch(ctx context.Context, center geo.Point, radiusM float64, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if radiusM > MaxGeoRadiusMeters {
		radiusM = MaxGeoRadiusMeters
	}
	if radiusM < minGeoRadiusMeters {
		radiusM = minGeoRadiusMeters
	}

	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "geosearch")
	q.Set("gscoord", fmt.Sprintf("%f|%f", center.Lat, center.Lon))
	q.Set("gsradius", strconv.Itoa(int(radiusM)))
	q.Set("gslimit", strconv.Itoa(limit))

	body, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}

	var resp geoSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode geosearch response: %v", ErrUpstreamUnavailable, err)
	}

	articles := make([]Article, 0, len(resp.Query.GeoSearch))
	for _, s := range resp.Query.GeoSearch {
		articles = append(articles, Article{
			PageID:      s.PageID,
			Title:       s.Title,
			Coordinates: []geo.Point{{Lat: s.Lat, Lon: s.Lon}},
			Link:        pageLink(c.base, s.PageID),
		})
	}
	return articles, nil
}
