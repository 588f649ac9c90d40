package main

import (
	"testing"

	"github.com/V4T54L/firewatch/internal/events"
	"github.com/paulmach/orb"
)

func TestGenerator_EventsValidate(t *testing.T) {
	g := newGenerator(42, orb.Point{-122.4, 37.7}, 0.2, nil)

	for i := 0; i < 50; i++ {
		fd := g.fireDetected()
		if _, err := events.Encode(&fd); err != nil {
			t.Fatalf("fire detected %d: %v", i, err)
		}
		rp := g.riskPredicted()
		if _, err := events.Encode(&rp); err != nil {
			t.Fatalf("risk predicted %d: %v", i, err)
		}
		fs := g.fireSpread()
		if _, err := events.Encode(&fs); err != nil {
			t.Fatalf("fire spread %d: %v", i, err)
		}
		if _, ok := fs.Location().(orb.Polygon); !ok {
			t.Fatalf("spread location = %T, want polygon", fs.Location())
		}
	}
}

func TestGenerator_ReusesFireIDs(t *testing.T) {
	g := newGenerator(7, orb.Point{0, 0}, 0.1, []string{"F1", "F2"})
	for i := 0; i < 20; i++ {
		id := g.fireDetected().FireID
		if id != "F1" && id != "F2" {
			t.Fatalf("unexpected fire id %q", id)
		}
	}
	if rp := g.riskPredicted(); rp.FireID == nil {
		t.Error("expected risk predictions to reference a known fire")
	}
}

func TestParseMix(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "default", in: "detected=3,risk=5,spread=2"},
		{name: "single kind", in: "risk=1"},
		{name: "missing weight", in: "risk", wantErr: true},
		{name: "unknown kind", in: "flood=1", wantErr: true},
		{name: "negative weight", in: "risk=-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseMix(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseMix(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestGenerator_PickHonoursZeroWeights(t *testing.T) {
	g := newGenerator(1, orb.Point{0, 0}, 0.1, nil)
	mix := map[string]int{"risk": 1}
	for i := 0; i < 20; i++ {
		if got := g.pick(mix); got != "risk" {
			t.Fatalf("pick() = %q, want risk", got)
		}
	}
}
