package engine

import (
	"math"
	"time"

	"github.com/dionzand/visual-metronome/score"
)

// TempoMap answers tempo and duration questions for one score version.
// It is rebuilt together with the Bar Index on every score update.
type TempoMap struct {
	s *score.Score
}

// NewTempoMap wraps a normalized score.
func NewTempoMap(s *score.Score) *TempoMap {
	return &TempoMap{s: s}
}

// Percentage returns the global tempo percentage (25-150).
func (t *TempoMap) Percentage() int {
	return t.s.TempoPercentage
}

// transitionWindow reports whether the given position falls inside the
// ramp into the next section, and if so how far along the ramp it is.
func (t *TempoMap) transitionWindow(sectionIdx, barInSection int) (progress float64, ok bool) {
	if sectionIdx < 0 || sectionIdx >= len(t.s.Sections) {
		return 0, false
	}
	if sectionIdx+1 >= len(t.s.Sections) {
		return 0, false
	}
	cur := &t.s.Sections[sectionIdx]
	next := &t.s.Sections[sectionIdx+1]
	tb := next.TempoTransitionBars
	if tb > len(cur.Bars) {
		tb = len(cur.Bars)
	}
	if tb <= 0 {
		return 0, false
	}
	barsFromEnd := len(cur.Bars) - barInSection
	if barsFromEnd > tb || barsFromEnd < 1 {
		return 0, false
	}
	// Last bar of the window lands exactly on the next section's tempo.
	return float64(tb-barsFromEnd+1) / float64(tb), true
}

// EffectiveTempo returns the BPM in effect at a position, interpolating
// linearly across an inter-section tempo transition. The returned value
// is the declared tempo, before percentage scaling.
func (t *TempoMap) EffectiveTempo(sectionIdx, barInSection int) int {
	if len(t.s.Sections) == 0 {
		return 120
	}
	if sectionIdx < 0 {
		// Countoff always runs at the first section's tempo.
		return t.s.Sections[0].Tempo
	}
	if sectionIdx >= len(t.s.Sections) {
		sectionIdx = len(t.s.Sections) - 1
	}
	cur := t.s.Sections[sectionIdx].Tempo
	progress, ok := t.transitionWindow(sectionIdx, barInSection)
	if !ok {
		return cur
	}
	next := t.s.Sections[sectionIdx+1].Tempo
	return int(math.Round(float64(cur) + float64(next-cur)*progress))
}

// IsInTransition exposes the window test so a display can show a
// rising/falling tempo indicator without recomputing the tempo.
func (t *TempoMap) IsInTransition(sectionIdx, barInSection int) bool {
	_, ok := t.transitionWindow(sectionIdx, barInSection)
	return ok
}

// scaled applies the global tempo percentage.
func (t *TempoMap) scaled(bpm int) float64 {
	return float64(bpm) * float64(t.s.TempoPercentage) / 100.0
}

// BarDuration returns the wall-clock length of a bar at the given BPM.
// Fermata bars override the beat-driven length: a 'seconds' fermata is
// tempo-independent, a 'beats' fermata holds that many beats.
func (t *TempoMap) BarDuration(b *score.FlatBar, bpm int) time.Duration {
	adjusted := t.scaled(bpm)
	if adjusted <= 0 {
		adjusted = 1
	}
	if b.IsFermata {
		if b.FermataDurationType == score.FermataSeconds {
			return time.Duration(b.FermataDuration * float64(time.Second))
		}
		return time.Duration(b.FermataDuration * 60.0 / adjusted * float64(time.Second))
	}
	beats := float64(b.TimeSignature.BeatsPerBar)
	return time.Duration(beats * 60.0 / adjusted * float64(time.Second))
}

// BeatDuration returns the length of one beat. A fermata bar is a
// single held pseudo-beat spanning the whole bar.
func (t *TempoMap) BeatDuration(b *score.FlatBar, bpm int) time.Duration {
	bar := t.BarDuration(b, bpm)
	if b.IsFermata {
		return bar
	}
	beats := b.TimeSignature.BeatsPerBar
	if beats < 1 {
		beats = 1
	}
	return bar / time.Duration(beats)
}

// SubdivisionDuration returns the length of one subdivision slice.
func (t *TempoMap) SubdivisionDuration(b *score.FlatBar, bpm int) time.Duration {
	slices := b.Subdivision.Slices()
	if slices < 1 {
		slices = 1
	}
	return t.BeatDuration(b, bpm) / time.Duration(slices)
}
