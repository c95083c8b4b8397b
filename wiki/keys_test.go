package wiki

import (
	"testing"

	"github.com/mkorolev/wikiatlas/geo"
)

// Equivalent queries must share one key; distinct ones must not.
func TestSearchKey(t *testing.T) {
	t.Parallel()

	if SearchKey("Eiffel Tower", 50) != SearchKey("  eiffel tower ", 50) {
		t.Fatal("case and whitespace must not change the key")
	}
	if SearchKey("eiffel tower", 50) == SearchKey("eiffel tower", 10) {
		t.Fatal("limit is part of cache identity")
	}
	if got, want := SearchKey(" Paris ", 50), "search:q=paris&limit=50"; got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestGeoKey(t *testing.T) {
	t.Parallel()

	a := geo.Point{Lat: 48.8561, Lon: 2.3518}
	b := geo.Point{Lat: 48.8564, Lon: 2.3521} // same grid cell
	far := geo.Point{Lat: 48.88, Lon: 2.40}

	if GeoKey(a, 5_000, "", 0, 50) != GeoKey(b, 5_000, "", 0, 50) {
		t.Fatal("nearby coordinates must snap to one key")
	}
	if GeoKey(a, 5_000, "", 0, 50) == GeoKey(far, 5_000, "", 0, 50) {
		t.Fatal("distant coordinates must not share a key")
	}
	if GeoKey(a, 5_000, "", 0, 50) == GeoKey(a, 2_000, "", 0, 50) {
		t.Fatal("radius is part of cache identity")
	}
	if GeoKey(a, 5_000, "", 1900, 50) == GeoKey(a, 5_000, "", 0, 50) {
		t.Fatal("year is part of cache identity")
	}
	if GeoKey(a, 5_000, "Museum", 0, 50) != GeoKey(a, 5_000, " museum ", 0, 50) {
		t.Fatal("query normalization must match SearchKey's")
	}

	want := "geo:lat=48.86&lon=2.35&r=5000&q=&year=0&limit=50"
	if got := GeoKey(a, 5_000, "", 0, 50); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

// Id permutations collapse onto one key; sorting is numeric, not lexical.
func TestDetailKey(t *testing.T) {
	t.Parallel()

	if DetailKey([]int64{3, 1, 2}) != DetailKey([]int64{1, 2, 3}) {
		t.Fatal("permutations must share a key")
	}
	if got, want := DetailKey([]int64{100, 20, 3}), "details:3,20,100"; got != want {
		t.Fatalf("numeric sort: want %q, got %q", want, got)
	}
	if got, want := DetailKey(nil), "details:"; got != want {
		t.Fatalf("empty ids: want %q, got %q", want, got)
	}

	// The input slice is left untouched.
	ids := []int64{9, 1}
	DetailKey(ids)
	if ids[0] != 9 || ids[1] != 1 {
		t.Fatalf("input must not be reordered, got %v", ids)
	}
}
