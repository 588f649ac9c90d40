package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/V4T54L/firewatch/internal/events"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// generator produces plausible fire events scattered around a centre point.
type generator struct {
	rnd     *rand.Rand
	centre  orb.Point
	spreadD float64 // degrees
	fireIDs []string
}

func newGenerator(seed uint64, centre orb.Point, spreadDegrees float64, fireIDs []string) *generator {
	return &generator{
		rnd:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		centre:  centre,
		spreadD: spreadDegrees,
		fireIDs: fireIDs,
	}
}

func (g *generator) point() orb.Point {
	return orb.Point{
		g.centre.Lon() + (g.rnd.Float64()*2-1)*g.spreadD,
		g.centre.Lat() + (g.rnd.Float64()*2-1)*g.spreadD,
	}
}

func (g *generator) fireID() string {
	if len(g.fireIDs) > 0 {
		return g.fireIDs[g.rnd.IntN(len(g.fireIDs))]
	}
	return uuid.NewString()
}

func (g *generator) fireDetected() events.FireDetected {
	return events.FireDetected{
		FireID:            g.fireID(),
		FireLocation:      wkt.MarshalString(g.point()),
		FireSeverityLevel: 1 + g.rnd.IntN(5),
		IsVerified:        true,
	}
}

func (g *generator) riskPredicted() events.FireRiskPredicted {
	levels := []events.Level{"low", "moderate", "high", "extreme"}
	e := events.FireRiskPredicted{
		ZoneLocation: wkt.MarshalString(g.point()),
		RiskLevel:    levels[g.rnd.IntN(len(levels))],
	}
	if len(g.fireIDs) > 0 {
		id := g.fireID()
		e.FireID = &id
	}
	return e
}

// fireSpread returns a closed hexagon around a random point.
func (g *generator) fireSpread() events.FireSpread {
	c := g.point()
	r := 0.005 + g.rnd.Float64()*0.02
	ring := make(orb.Ring, 0, 7)
	for i := 0; i < 6; i++ {
		a := float64(i) * math.Pi / 3
		ring = append(ring, orb.Point{c.Lon() + r*math.Cos(a), c.Lat() + r*math.Sin(a)})
	}
	ring = append(ring, ring[0])

	return events.FireSpread{
		FireID:            g.fireID(),
		FireLocation:      wkt.MarshalString(orb.Polygon{ring}),
		FireSeverityLevel: 2 + g.rnd.IntN(4),
	}
}

func parseFireIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func parseMix(s string) (map[string]int, error) {
	mix := map[string]int{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, w, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("mix entry %q must be kind=weight", part)
		}
		kind := strings.TrimSpace(name)
		var weight int
		if _, err := fmt.Sscanf(strings.TrimSpace(w), "%d", &weight); err != nil || weight < 0 {
			return nil, fmt.Errorf("mix entry %q has an invalid weight", part)
		}
		switch kind {
		case "detected", "risk", "spread":
		default:
			return nil, fmt.Errorf("unknown event kind %q", kind)
		}
		mix[kind] = weight
	}
	return mix, nil
}

// pick chooses an event kind proportionally to the mix weights.
func (g *generator) pick(mix map[string]int) string {
	total := 0
	for _, k := range []string{"detected", "risk", "spread"} {
		total += mix[k]
	}
	if total == 0 {
		return "detected"
	}
	n := g.rnd.IntN(total)
	for _, k := range []string{"detected", "risk", "spread"} {
		if n < mix[k] {
			return k
		}
		n -= mix[k]
	}
	return "detected"
}
