// Package geo provides the small amount of spherical geometry wikiatlas
// needs: great-circle distances for the coverage cache and grid snapping
// for cache-key derivation.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for all distance math.
const EarthRadiusMeters = 6_371_000

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"` // -90 to 90
	Lon float64 `json:"lon"` // -180 to 180
}

// Distance returns the great-circle distance between p1 and p2 in meters,
// computed with the haversine formula.
func Distance(p1, p2 Point) float64 {
	φ1 := p1.Lat * math.Pi / 180
	φ2 := p2.Lat * math.Pi / 180
	Δφ := (p2.Lat - p1.Lat) * math.Pi / 180
	Δλ := (p2.Lon - p1.Lon) * math.Pi / 180

	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*
			math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// GridStep is the snapping resolution for geographic cache keys, about 1 km
// of latitude. Nearby queries snap to the same key and share cache entries.
const GridStep = 0.01

// Snap rounds a coordinate component to the key grid.
func Snap(deg float64) float64 {
	return math.Round(deg/GridStep) * GridStep
}

// SnapPoint snaps both components of p to the key grid.
func SnapPoint(p Point) Point {
	return Point{Lat: Snap(p.Lat), Lon: Snap(p.Lon)}
}
