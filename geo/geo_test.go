package geo

import (
	"math"
	"testing"
)

// Distances checked against well-known city pairs; tolerance is generous
// because the haversine model assumes a perfect sphere.
func TestDistance(t *testing.T) {
	t.Parallel()

	paris := Point{Lat: 48.8566, Lon: 2.3522}
	london := Point{Lat: 51.5074, Lon: -0.1278}

	if d := Distance(paris, paris); d != 0 {
		t.Fatalf("self distance want 0, got %v", d)
	}

	d := Distance(paris, london)
	if d < 340_000 || d > 347_000 {
		t.Fatalf("Paris-London want ~343.5 km, got %.0f m", d)
	}
	if d2 := Distance(london, paris); math.Abs(d-d2) > 1e-6 {
		t.Fatalf("distance must be symmetric: %v vs %v", d, d2)
	}
}

// One grid step of latitude is roughly 1.1 km everywhere on the sphere.
func TestDistance_GridStepScale(t *testing.T) {
	t.Parallel()

	d := Distance(Point{}, Point{Lat: GridStep})
	if d < 1_100 || d > 1_125 {
		t.Fatalf("0.01 deg of latitude want ~1112 m, got %.1f m", d)
	}
}

func TestSnap(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want float64
	}{
		{48.8566, 48.86},
		{2.3522, 2.35},
		{-0.1278, -0.13},
		{0, 0},
		{48.86, 48.86}, // already on the grid
	}
	for _, tc := range cases {
		if got := Snap(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Snap(%v) want %v, got %v", tc.in, tc.want, got)
		}
	}

	p := SnapPoint(Point{Lat: 48.8566, Lon: 2.3522})
	if math.Abs(p.Lat-48.86) > 1e-9 || math.Abs(p.Lon-2.35) > 1e-9 {
		t.Fatalf("SnapPoint got %+v", p)
	}
}

// Nearby coordinates collapse onto one grid cell, distant ones do not.
func TestSnap_SharesCell(t *testing.T) {
	t.Parallel()

	a := SnapPoint(Point{Lat: 48.8561, Lon: 2.3518})
	b := SnapPoint(Point{Lat: 48.8564, Lon: 2.3521})
	if a != b {
		t.Fatalf("points ~40 m apart must share a cell: %+v vs %+v", a, b)
	}

	far := SnapPoint(Point{Lat: 48.88, Lon: 2.40})
	if a == far {
		t.Fatal("distant points must not share a cell")
	}
}
