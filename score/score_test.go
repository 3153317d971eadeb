package score

import (
	"path/filepath"
	"testing"
)

func TestNormalizeClampsTempoPercentage(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 100},
		{10, 25},
		{100, 100},
		{200, 150},
	}
	for _, c := range cases {
		s := &Score{TempoPercentage: c.in}
		s.Normalize()
		if s.TempoPercentage != c.want {
			t.Errorf("percentage %d: got %d, want %d", c.in, s.TempoPercentage, c.want)
		}
	}
}

func TestNormalizeAppliesBarDefaults(t *testing.T) {
	s := &Score{
		Sections: []Section{{
			Bars: []Bar{
				{Redirect: 3},
				{IsFermata: true},
			},
		}},
	}
	s.Normalize()

	b := s.Sections[0].Bars[0]
	if b.RedirectCount != 1 {
		t.Errorf("redirectCount default: got %d, want 1", b.RedirectCount)
	}
	if b.Subdivision != SubdivisionNone {
		t.Errorf("subdivision default: got %q", b.Subdivision)
	}

	f := s.Sections[0].Bars[1]
	if f.FermataDurationType != FermataBeats {
		t.Errorf("fermata type default: got %q", f.FermataDurationType)
	}
	if f.FermataDuration != 4 {
		t.Errorf("fermata duration default: got %v, want beatsPerBar", f.FermataDuration)
	}
}

func TestNormalizeClampsTransitionBars(t *testing.T) {
	s := &Score{
		Sections: []Section{
			{Tempo: 100, Bars: make([]Bar, 2)},
			{Tempo: 140, TempoTransitionBars: 8, Bars: make([]Bar, 4)},
		},
	}
	s.Normalize()
	if got := s.Sections[1].TempoTransitionBars; got != 2 {
		t.Errorf("transition bars: got %d, want clamp to preceding section length 2", got)
	}
}

func TestSubdivisionSlices(t *testing.T) {
	cases := []struct {
		sub  Subdivision
		want int
	}{
		{SubdivisionNone, 1},
		{SubdivisionEighth, 2},
		{SubdivisionTriplet, 3},
		{SubdivisionSixteenth, 4},
		{SubdivisionQuintuplet, 5},
		{SubdivisionSextuplet, 6},
		{Subdivision("bogus"), 1},
	}
	for _, c := range cases {
		if got := c.sub.Slices(); got != c.want {
			t.Errorf("%q: got %d, want %d", c.sub, got, c.want)
		}
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	s := &Score{
		Name:         "demo",
		CountoffBars: 2,
		Sections: []Section{{
			Name:          "A",
			Tempo:         90,
			TimeSignature: TimeSignature{BeatsPerBar: 3, NoteValue: 4},
			Bars: []Bar{
				{Chords: "Am"},
				{OSCAddress: "/light/1", OSCArgs: "1,0.5"},
			},
		}},
	}
	s.Normalize()

	path := filepath.Join(t.TempDir(), "score.json")
	if err := s.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Name != "demo" || got.CountoffBars != 2 {
		t.Errorf("header mismatch: %+v", got)
	}
	if got.TotalBars() != 2 {
		t.Errorf("total bars: got %d, want 2", got.TotalBars())
	}
	if got.Sections[0].Bars[1].OSCAddress != "/light/1" {
		t.Errorf("bar fields lost: %+v", got.Sections[0].Bars[1])
	}
}
