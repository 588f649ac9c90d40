// Package geo parses WKT locations and ranks points by distance to a fire geometry.
package geo

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

const earthRadiusMeters = 6378137.0

var ErrUnsupportedGeometry = errors.New("unsupported geometry")

// ParseWKT parses a WKT POINT or POLYGON.
func ParseWKT(s string) (orb.Geometry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty WKT")
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("parse WKT %q: %w", s, err)
	}
	switch v := g.(type) {
	case orb.Point:
		if err := validPoint(v); err != nil {
			return nil, err
		}
		return v, nil
	case orb.Polygon:
		if len(v) == 0 || len(v[0]) < 4 {
			return nil, fmt.Errorf("polygon needs a closed outer ring of at least 4 points: %w", ErrUnsupportedGeometry)
		}
		for _, p := range v[0] {
			if err := validPoint(p); err != nil {
				return nil, err
			}
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%s: %w", g.GeoJSONType(), ErrUnsupportedGeometry)
	}
}

// ParsePoint parses a WKT POINT.
func ParsePoint(s string) (orb.Point, error) {
	g, err := ParseWKT(s)
	if err != nil {
		return orb.Point{}, err
	}
	p, ok := g.(orb.Point)
	if !ok {
		return orb.Point{}, fmt.Errorf("expected POINT, got %s: %w", g.GeoJSONType(), ErrUnsupportedGeometry)
	}
	return p, nil
}

// FormatWKT renders g as WKT.
func FormatWKT(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return wkt.MarshalString(g)
}

func validPoint(p orb.Point) error {
	if p.Lon() < -180 || p.Lon() > 180 || p.Lat() < -90 || p.Lat() > 90 {
		return fmt.Errorf("coordinate %v out of range", p)
	}
	return nil
}

// Distance is the great-circle distance between two lon/lat points in metres.
func Distance(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// DistanceTo is the distance in metres from p to g. For a polygon it is the distance to
// the nearest edge, or 0 when p lies inside.
func DistanceTo(p orb.Point, g orb.Geometry) float64 {
	switch v := g.(type) {
	case orb.Point:
		return Distance(p, v)
	case orb.Polygon:
		if planar.PolygonContains(v, p) {
			return 0
		}
		best := math.Inf(1)
		for _, ring := range v {
			for i := 0; i+1 < len(ring); i++ {
				if d := segmentDistance(p, ring[i], ring[i+1]); d < best {
					best = d
				}
			}
		}
		return best
	default:
		return math.Inf(1)
	}
}

// segmentDistance projects a and b onto a local equirectangular plane centred on p and
// returns the distance from p to segment ab. Adequate at municipal scale.
func segmentDistance(p, a, b orb.Point) float64 {
	scale := math.Cos(p.Lat() * math.Pi / 180)
	project := func(q orb.Point) (float64, float64) {
		x := (q.Lon() - p.Lon()) * math.Pi / 180 * earthRadiusMeters * scale
		y := (q.Lat() - p.Lat()) * math.Pi / 180 * earthRadiusMeters
		return x, y
	}
	ax, ay := project(a)
	bx, by := project(b)
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = math.Max(0, math.Min(1, -(ax*dx+ay*dy)/lenSq))
	}
	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(cx, cy)
}

// Candidate is anything with an id and a location that can be ranked.
type Candidate struct {
	ID       string
	Location orb.Point
}

// Ranked is a candidate with its distance to the target.
type Ranked struct {
	Candidate
	DistanceMeters float64
}

// Rank orders candidates by distance to target, breaking ties by id ascending.
func Rank(candidates []Candidate, target orb.Geometry) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, Ranked{Candidate: c, DistanceMeters: DistanceTo(c.Location, target)})
	}
	slices.SortFunc(ranked, func(a, b Ranked) int {
		if c := cmp.Compare(a.DistanceMeters, b.DistanceMeters); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return ranked
}

// Nearest returns the closest candidate to target. ok is false when candidates is empty.
func Nearest(candidates []Candidate, target orb.Geometry) (Ranked, bool) {
	ranked := Rank(candidates, target)
	if len(ranked) == 0 {
		return Ranked{}, false
	}
	return ranked[0], true
}

// Within reports whether p is within radiusMeters of g.
func Within(p orb.Point, g orb.Geometry, radiusMeters float64) bool {
	return DistanceTo(p, g) <= radiusMeters
}
