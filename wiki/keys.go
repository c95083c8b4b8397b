package wiki

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mkorolev/wikiatlas/geo"
)

// Cache keys are derived from normalized inputs so that equivalent requests
// collide: query text is lower-cased and trimmed, coordinates snap to the
// ~1 km key grid, and id lists are sorted numerically.

// SearchKey builds the response-cache key for a free-text search.
func SearchKey(query string, limit int) string {
	q := strings.ToLower(strings.TrimSpace(query))
	return fmt.Sprintf("search:q=%s&limit=%d", q, limit)
}

// GeoKey builds the response-cache key for a geographic search.
// Latitude and longitude snap to the grid before formatting, so queries
// issued while the map drifts a few hundred meters share one key.
func GeoKey(center geo.Point, radiusM float64, query string, year, limit int) string {
	p := geo.SnapPoint(center)
	q := strings.ToLower(strings.TrimSpace(query))
	return fmt.Sprintf("geo:lat=%.2f&lon=%.2f&r=%d&q=%s&year=%d&limit=%d",
		p.Lat, p.Lon, int64(radiusM), q, year, limit)
}

// DetailKey builds the detail-cache key for a batch of page ids.
// Ids are sorted numerically first, so permutations of the same id set
// produce the same key.
func DetailKey(ids []int64) string {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var b strings.Builder
	b.WriteString("details:")
	for i, id := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}
