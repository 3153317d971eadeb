package engine

import (
	"time"

	"github.com/dionzand/visual-metronome/debug"
	"github.com/dionzand/visual-metronome/score"
)

// maxVoltaSkips bounds the volta skip scan so malformed volta data can
// never spin the resolver forever.
const maxVoltaSkips = 100

// navRule is one guard+action in the resolver chain. fire returns true
// when the rule handled the bar completion; false falls through to the
// next rule (possibly after side effects, e.g. an exhausted redirect
// resets its counter before falling through).
type navRule struct {
	name string
	fire func(e *Engine, now time.Time) bool
}

// navRules is the resolver's precedence chain, evaluated top to bottom
// on every bar completion. Order is load-bearing.
var navRules = []navRule{
	{"loop-current-bar", (*Engine).navLoopCurrentBar},
	{"pending-after-bar", (*Engine).navPendingAfterBar},
	{"countoff", (*Engine).navCountoff},
	{"fine", (*Engine).navFine},
	{"to-coda", (*Engine).navToCoda},
	{"dal-segno", (*Engine).navDalSegno},
	{"da-capo", (*Engine).navDaCapo},
	{"redirect", (*Engine).navRedirect},
	{"end-repeat", (*Engine).navEndRepeat},
	{"song-loop", (*Engine).navSongLoop},
	{"advance", (*Engine).navAdvance},
}

// completeBar runs the resolver chain. Called with the lock held when
// the current bar's elapsed time reaches its duration.
func (e *Engine) completeBar(now time.Time) {
	for _, r := range navRules {
		if r.fire(e, now) {
			return
		}
	}
}

func (e *Engine) navLoopCurrentBar(now time.Time) bool {
	if !e.st.LoopBar.Enabled || e.st.InCountoff {
		return false
	}
	e.seekToBar(e.st.LoopBar.BarNumber, now)
	return true
}

func (e *Engine) navPendingAfterBar(now time.Time) bool {
	if e.st.Pending == nil || e.st.Pending.Mode != JumpAfterBar {
		return false
	}
	target := e.st.Pending.BarNumber
	e.st.Pending = nil
	e.seekToBar(target, now)
	return true
}

func (e *Engine) navCountoff(now time.Time) bool {
	if !e.st.InCountoff {
		return false
	}
	e.st.CountoffRemaining--
	e.st.Beat = 0
	e.st.Subdivision = 0
	e.st.BarStart = now
	if e.st.CountoffRemaining <= 0 {
		e.st.InCountoff = false
		e.st.CountoffRemaining = 0
		e.st.SectionIndex = 0
		e.st.BarInSection = 0
		e.fireBarTriggers()
	}
	return true
}

func (e *Engine) navFine(now time.Time) bool {
	b := e.currentFlat()
	if b == nil || !b.Fine || !e.st.WatchForCodaFine {
		return false
	}
	e.emitEvent(EventSongEnded)
	e.haltLocked()
	return true
}

func (e *Engine) navToCoda(now time.Time) bool {
	b := e.currentFlat()
	if b == nil || !b.ToCoda || !e.st.WatchForCodaFine {
		return false
	}
	target := e.findMarker(func(fb *score.FlatBar) bool { return fb.Coda })
	if target == 0 {
		debug.Log("nav", "to-coda at bar %d has no coda target, falling through", b.AbsoluteNumber)
		return false
	}
	e.st.WatchForCodaFine = false
	e.seekToBar(target, now)
	return true
}

func (e *Engine) navDalSegno(now time.Time) bool {
	b := e.currentFlat()
	if b == nil || !b.DalSegno || e.st.JumpedViaDSDC {
		return false
	}
	target := e.findMarker(func(fb *score.FlatBar) bool { return fb.Segno })
	if target == 0 {
		debug.Log("nav", "dal segno at bar %d has no segno target, falling through", b.AbsoluteNumber)
		return false
	}
	e.st.JumpedViaDSDC = true
	e.st.WatchForCodaFine = true
	e.seekToBar(target, now)
	return true
}

func (e *Engine) navDaCapo(now time.Time) bool {
	b := e.currentFlat()
	if b == nil || !b.DaCapo || e.st.JumpedViaDSDC {
		return false
	}
	e.st.JumpedViaDSDC = true
	e.st.WatchForCodaFine = true
	e.seekToBar(1, now)
	return true
}

func (e *Engine) navRedirect(now time.Time) bool {
	b := e.currentFlat()
	if b == nil || b.Redirect <= 0 {
		return false
	}
	key := redirectKey{From: b.AbsoluteNumber, To: b.Redirect}
	count := e.st.RedirectCounts[key]
	if count >= b.RedirectCount {
		// Exhausted: reset so the redirect fires again on a later pass.
		e.st.RedirectCounts[key] = 0
		return false
	}
	e.st.RedirectCounts[key] = count + 1
	e.seekToBar(b.Redirect, now)
	return true
}

func (e *Engine) navEndRepeat(now time.Time) bool {
	b := e.currentFlat()
	if b == nil || !b.EndRepeat {
		return false
	}
	start := e.findStartRepeat(b.AbsoluteNumber)
	if len(b.Volta) > 0 && !containsInt(b.Volta, e.st.PassNumber) {
		// Repeat not taken on this pass: drop the tracking entry and
		// let the advance rules carry on.
		e.st.removeRepeat(start)
		return false
	}
	ent := e.st.repeatFor(start)
	if ent == nil {
		e.st.RepeatStack = append(e.st.RepeatStack, repeatEntry{
			StartBar:    start,
			EndBar:      b.AbsoluteNumber,
			TimesPlayed: 1,
		})
		ent = &e.st.RepeatStack[len(e.st.RepeatStack)-1]
	}
	max := e.voltaMax(start, b.AbsoluteNumber)
	if ent.TimesPlayed < max {
		ent.TimesPlayed++
		e.st.PassNumber = ent.TimesPlayed
		e.seekToBar(start, now)
		return true
	}
	e.st.removeRepeat(start)
	e.st.PassNumber = 1
	return false
}

func (e *Engine) navSongLoop(now time.Time) bool {
	b := e.currentFlat()
	loop := e.score.Loop
	if b == nil || !loop.Enabled {
		return false
	}
	end := loop.End
	if end < 1 || end > len(e.flat) {
		end = len(e.flat)
	}
	if b.AbsoluteNumber < end {
		return false
	}
	start := loop.Start
	if start < 1 {
		start = 1
	}
	// Let OSC triggers re-fire on every loop pass.
	e.st.LastTriggeredBar = -1
	e.seekToBar(start, now)
	return true
}

// navAdvance is the terminal rule: plain advance to the next bar, then
// the volta skip scan, then end-of-song handling. Always handles.
func (e *Engine) navAdvance(now time.Time) bool {
	b := e.currentFlat()
	if b == nil || b.AbsoluteNumber >= len(e.flat) {
		e.songEnd(now)
		return true
	}
	e.moveToIndex(b.AbsoluteNumber, now) // flat index of the next bar

	// Skip bars whose volta excludes this pass. Bounded so contradictory
	// volta data cannot stall the clock.
	for i := 0; i < maxVoltaSkips; i++ {
		nb := e.currentFlat()
		if nb == nil {
			e.songEnd(now)
			return true
		}
		if len(nb.Volta) == 0 || containsInt(nb.Volta, e.st.PassNumber) {
			break
		}
		if nb.EndRepeat {
			// Skipping over an end repeat retires its tracking entry but
			// keeps the pass number so later volta bars still match.
			e.st.removeRepeat(e.findStartRepeat(nb.AbsoluteNumber))
		}
		if nb.AbsoluteNumber >= len(e.flat) {
			e.songEnd(now)
			return true
		}
		e.moveToIndex(nb.AbsoluteNumber, now)
	}

	if nb := e.currentFlat(); nb != nil && len(nb.Volta) == 0 && len(e.st.RepeatStack) == 0 {
		e.st.PassNumber = 1
	}
	e.fireBarTriggers()
	return true
}

// songEnd fires the song-ended notification and either restarts at bar
// 1 (repeat-song, no countoff) or halts.
func (e *Engine) songEnd(now time.Time) {
	e.emitEvent(EventSongEnded)
	if e.repeatSong && len(e.flat) > 0 {
		e.st.RepeatStack = nil
		e.st.PassNumber = 1
		e.st.JumpedViaDSDC = false
		e.st.WatchForCodaFine = false
		e.st.LastTriggeredBar = -1
		e.seekToBar(1, now)
		return
	}
	e.haltLocked()
}

// seekToBar is the single reposition primitive every jump routes
// through: direct seeks, deferred jumps, and all resolver rules. The
// target is clamped defensively, countoff is cleared, the beat resets
// and the bar start is restamped to now.
func (e *Engine) seekToBar(abs int, now time.Time) {
	if len(e.flat) == 0 {
		return
	}
	if abs < 1 {
		abs = 1
	}
	if abs > len(e.flat) {
		abs = len(e.flat)
	}
	fb := &e.flat[abs-1]
	e.st.SectionIndex = fb.SectionIndex
	e.st.BarInSection = fb.BarInSection
	e.st.Beat = 0
	e.st.Subdivision = 0
	e.st.InCountoff = false
	e.st.CountoffRemaining = 0
	e.st.BarStart = now
	e.fireBarTriggers()
}

// moveToIndex repositions to a 0-based flat index without trigger side
// effects; navAdvance fires triggers once skipping settles.
func (e *Engine) moveToIndex(idx int, now time.Time) {
	if idx < 0 || idx >= len(e.flat) {
		return
	}
	fb := &e.flat[idx]
	e.st.SectionIndex = fb.SectionIndex
	e.st.BarInSection = fb.BarInSection
	e.st.Beat = 0
	e.st.Subdivision = 0
	e.st.BarStart = now
}

// findMarker returns the absolute number of the first bar matching the
// predicate, scanning from bar 1, or 0 when absent.
func (e *Engine) findMarker(match func(*score.FlatBar) bool) int {
	for i := range e.flat {
		if match(&e.flat[i]) {
			return e.flat[i].AbsoluteNumber
		}
	}
	return 0
}

// findStartRepeat scans backward from an end-repeat bar for its start
// bar, defaulting to bar 1.
func (e *Engine) findStartRepeat(fromAbs int) int {
	if fromAbs > len(e.flat) {
		fromAbs = len(e.flat)
	}
	for i := fromAbs; i >= 1; i-- {
		if e.flat[i-1].StartRepeat {
			return i
		}
	}
	return 1
}

// voltaMax finds the repeat count implied by volta brackets: the
// highest volta number from the start bar through and past the end
// bar while consecutive bars carry volta tags. Two passes when no
// voltas are present.
func (e *Engine) voltaMax(startAbs, endAbs int) int {
	max := 0
	for i := startAbs; i <= len(e.flat); i++ {
		fb := &e.flat[i-1]
		if len(fb.Volta) == 0 {
			if i > endAbs {
				break
			}
			continue
		}
		for _, v := range fb.Volta {
			if v > max {
				max = v
			}
		}
	}
	if max < 2 {
		max = 2
	}
	return max
}

func containsInt(xs []int, n int) bool {
	for _, v := range xs {
		if v == n {
			return true
		}
	}
	return false
}
