package engine

import (
	"testing"
	"time"

	"github.com/dionzand/visual-metronome/score"
)

func transitionScore() *score.Score {
	s := &score.Score{
		Sections: []score.Section{
			{Tempo: 100, TimeSignature: score.TimeSignature{BeatsPerBar: 4, NoteValue: 4}, Bars: make([]score.Bar, 6)},
			{Tempo: 140, TimeSignature: score.TimeSignature{BeatsPerBar: 4, NoteValue: 4}, TempoTransitionBars: 4, Bars: make([]score.Bar, 2)},
		},
	}
	s.Normalize()
	return s
}

func TestEffectiveTempoTransitionEndpoints(t *testing.T) {
	tm := NewTempoMap(transitionScore())

	// Bar before the window: section tempo unchanged.
	if got := tm.EffectiveTempo(0, 1); got != 100 {
		t.Errorf("before window: got %d, want 100", got)
	}
	// Last bar of the window lands exactly on the next tempo.
	if got := tm.EffectiveTempo(0, 5); got != 140 {
		t.Errorf("last transition bar: got %d, want 140", got)
	}
	// First bar of the window: one step along the ramp.
	if got := tm.EffectiveTempo(0, 2); got != 110 {
		t.Errorf("first transition bar: got %d, want 110", got)
	}
	// Inside the next section the ramp is over.
	if got := tm.EffectiveTempo(1, 0); got != 140 {
		t.Errorf("next section: got %d, want 140", got)
	}
}

func TestIsInTransition(t *testing.T) {
	tm := NewTempoMap(transitionScore())
	if tm.IsInTransition(0, 1) {
		t.Error("bar before the window should not report a transition")
	}
	if !tm.IsInTransition(0, 2) || !tm.IsInTransition(0, 5) {
		t.Error("window bars should report a transition")
	}
	if tm.IsInTransition(1, 0) {
		t.Error("next section should not report a transition")
	}
}

func TestEffectiveTempoCountoff(t *testing.T) {
	tm := NewTempoMap(transitionScore())
	if got := tm.EffectiveTempo(-1, 0); got != 100 {
		t.Errorf("countoff tempo: got %d, want first section's 100", got)
	}
}

func barAt(s *score.Score, abs int) *score.FlatBar {
	flat := score.Flatten(s)
	return &flat[abs-1]
}

func TestBarDurationFermataSeconds(t *testing.T) {
	s := &score.Score{
		Sections: []score.Section{{
			Tempo:         120,
			TimeSignature: score.TimeSignature{BeatsPerBar: 4, NoteValue: 4},
			Bars: []score.Bar{{
				IsFermata:           true,
				FermataDuration:     3,
				FermataDurationType: score.FermataSeconds,
			}},
		}},
	}
	s.Normalize()
	tm := NewTempoMap(s)
	if got := tm.BarDuration(barAt(s, 1), 120); got != 3*time.Second {
		t.Errorf("seconds fermata: got %v, want 3s", got)
	}
	// Tempo-independent.
	if got := tm.BarDuration(barAt(s, 1), 40); got != 3*time.Second {
		t.Errorf("seconds fermata at 40 bpm: got %v, want 3s", got)
	}
}

func TestBarDurationFermataBeats(t *testing.T) {
	s := &score.Score{
		Sections: []score.Section{{
			Tempo:         120,
			TimeSignature: score.TimeSignature{BeatsPerBar: 4, NoteValue: 4},
			Bars: []score.Bar{{
				IsFermata:           true,
				FermataDuration:     4,
				FermataDurationType: score.FermataBeats,
			}},
		}},
	}
	s.Normalize()
	tm := NewTempoMap(s)
	if got := tm.BarDuration(barAt(s, 1), 120); got != 2*time.Second {
		t.Errorf("beats fermata: got %v, want 2s", got)
	}
	// The fermata bar is one held pseudo-beat.
	if got := tm.BeatDuration(barAt(s, 1), 120); got != 2*time.Second {
		t.Errorf("fermata beat: got %v, want bar duration", got)
	}
}

func TestBarDurationWithPercentage(t *testing.T) {
	s := transitionScore()
	s.TempoPercentage = 50
	tm := NewTempoMap(s)
	// 4 beats at an adjusted 50 BPM.
	want := time.Duration(4 * 60.0 / 50.0 * float64(time.Second))
	if got := tm.BarDuration(barAt(s, 1), 100); got != want {
		t.Errorf("scaled bar duration: got %v, want %v", got, want)
	}
}

func TestBeatAndSubdivisionDurations(t *testing.T) {
	s := transitionScore()
	s.Sections[0].Bars[0].Subdivision = score.SubdivisionSixteenth
	tm := NewTempoMap(s)
	b := barAt(s, 1)
	if got := tm.BeatDuration(b, 120); got != 500*time.Millisecond {
		t.Errorf("beat duration: got %v, want 500ms", got)
	}
	if got := tm.SubdivisionDuration(b, 120); got != 125*time.Millisecond {
		t.Errorf("16th subdivision: got %v, want 125ms", got)
	}
}
