package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestParseWKT(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "point", in: "POINT(-122.4 37.7)", want: "Point"},
		{name: "point with padding", in: "  POINT (10 20) ", want: "Point"},
		{name: "polygon", in: "POLYGON((0 0, 1 0, 1 1, 0 1, 0 0))", want: "Polygon"},
		{name: "empty", in: "", wantErr: true},
		{name: "garbage", in: "not wkt", wantErr: true},
		{name: "linestring", in: "LINESTRING(0 0, 1 1)", wantErr: true},
		{name: "out of range", in: "POINT(200 10)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ParseWKT(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWKT(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && g.GeoJSONType() != tt.want {
				t.Errorf("ParseWKT(%q) type = %s, want %s", tt.in, g.GeoJSONType(), tt.want)
			}
		})
	}
}

func TestParsePoint_RejectsPolygon(t *testing.T) {
	_, err := ParsePoint("POLYGON((0 0, 1 0, 1 1, 0 1, 0 0))")
	if !errors.Is(err, ErrUnsupportedGeometry) {
		t.Fatalf("expected ErrUnsupportedGeometry, got %v", err)
	}
}

func TestDistanceTo(t *testing.T) {
	square := orb.Polygon{{{0, 0}, {0.1, 0}, {0.1, 0.1}, {0, 0.1}, {0, 0}}}

	t.Run("point inside polygon", func(t *testing.T) {
		if d := DistanceTo(orb.Point{0.05, 0.05}, square); d != 0 {
			t.Errorf("expected 0, got %f", d)
		}
	})

	t.Run("point east of polygon uses nearest edge", func(t *testing.T) {
		p := orb.Point{0.2, 0.05}
		got := DistanceTo(p, square)
		want := Distance(p, orb.Point{0.1, 0.05})
		if math.Abs(got-want) > 5 {
			t.Errorf("edge distance = %f, want ~%f", got, want)
		}
	})

	t.Run("point to point", func(t *testing.T) {
		a, b := orb.Point{0, 0}, orb.Point{0, 1}
		if got := DistanceTo(a, b); math.Abs(got-111319) > 500 {
			t.Errorf("one degree of latitude = %f m", got)
		}
	})
}

func TestNearest(t *testing.T) {
	fire := orb.Point{0, 0}

	t.Run("picks minimum distance", func(t *testing.T) {
		got, ok := Nearest([]Candidate{
			{ID: "far", Location: orb.Point{0.3, 0}},
			{ID: "near", Location: orb.Point{0.01, 0}},
			{ID: "mid", Location: orb.Point{0.1, 0}},
		}, fire)
		if !ok || got.ID != "near" {
			t.Fatalf("expected near, got %+v ok=%v", got, ok)
		}
	})

	t.Run("ties resolve to lower id", func(t *testing.T) {
		got, _ := Nearest([]Candidate{
			{ID: "r-2", Location: orb.Point{0.05, 0}},
			{ID: "r-1", Location: orb.Point{-0.05, 0}},
		}, fire)
		if got.ID != "r-1" {
			t.Fatalf("expected r-1, got %s", got.ID)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, ok := Nearest(nil, fire); ok {
			t.Fatal("expected no candidate")
		}
	})
}
