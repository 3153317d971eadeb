package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/dionzand/visual-metronome/debug"
	"github.com/dionzand/visual-metronome/oscout"
	"github.com/dionzand/visual-metronome/score"
)

// TickRate is the transport clock frequency.
const TickRate = 60

// ErrNothingToPlay is returned by Play when the score has no bars.
var ErrNothingToPlay = errors.New("engine: score has no playable bars")

// OSCSender delivers per-bar trigger messages. Send failures are the
// sender's to report; the engine logs and keeps playing.
type OSCSender interface {
	Send(address string, args []any) error
}

// MIDIClock drives external gear sync. Start/Continue/Stop map to the
// MIDI realtime bytes 0xFA/0xFB/0xFC; Retime changes the 24 PPQN pulse
// rate without re-sending Start.
type MIDIClock interface {
	Start(bpm float64) error
	Continue(bpm float64) error
	Stop() error
	Retime(bpm float64)
}

type phase int

const (
	phaseStopped phase = iota
	phasePlaying
	phasePaused
)

// Engine is the transport clock: it owns the only mutable transport
// state, ticks at a fixed rate while playing, and runs the navigation
// resolver and trigger dispatch synchronously inside each tick.
// Commands arriving from other goroutines serialize on the same lock,
// so they apply atomically between ticks.
type Engine struct {
	mu sync.Mutex

	score        *score.Score
	flat         []score.FlatBar
	sectionStart []int // flat index of each section's first bar
	tempo        *TempoMap

	st         *TransportState
	phase      phase
	pausedAt   time.Time
	repeatSong bool

	osc   OSCSender
	clock MIDIClock

	now       func() time.Time
	tickEvery time.Duration
	stopTick  chan struct{}

	// Snapshots carries the latest per-tick state; stale entries are
	// replaced rather than blocking the tick path.
	Snapshots chan Snapshot
	// Events carries discrete transport notifications.
	Events chan Event
}

// New creates an engine for a score document. The document is
// normalized and indexed; replace it later with UpdateScore.
func New(doc *score.Score) *Engine {
	e := &Engine{
		st:        NewTransportState(),
		now:       time.Now,
		tickEvery: time.Second / TickRate,
		Snapshots: make(chan Snapshot, 1),
		Events:    make(chan Event, 16),
	}
	e.setScore(doc)
	return e
}

// SetOSCSender wires the OSC trigger output (nil disables it).
func (e *Engine) SetOSCSender(s OSCSender) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.osc = s
}

// SetMIDIClock wires the MIDI clock output (nil disables it).
func (e *Engine) SetMIDIClock(c MIDIClock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = c
}

func (e *Engine) setScore(doc *score.Score) {
	if doc == nil {
		doc = &score.Score{}
	}
	doc.Normalize()
	e.score = doc
	e.flat = score.Flatten(doc)
	e.tempo = NewTempoMap(doc)
	e.sectionStart = make([]int, len(doc.Sections))
	idx := 0
	for i := range doc.Sections {
		e.sectionStart[i] = idx
		idx += len(doc.Sections[i].Bars)
	}
}

// Play starts playback from stopped (entering countoff when the score
// asks for one) or resumes from pause, keeping position and issuing a
// MIDI continue instead of a start.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase {
	case phasePlaying:
		return nil

	case phasePaused:
		// Rebase the bar start so the paused gap doesn't count as
		// elapsed time.
		e.st.BarStart = e.st.BarStart.Add(e.now().Sub(e.pausedAt))
		e.phase = phasePlaying
		e.startTickLoop()
		e.clockContinue()
		e.emitEvent(EventStarted)
		return nil

	default:
		if len(e.flat) == 0 {
			return ErrNothingToPlay
		}
		now := e.now()
		e.st = NewTransportState()
		e.st.BarStart = now
		if e.score.CountoffBars > 0 {
			e.st.InCountoff = true
			e.st.CountoffRemaining = e.score.CountoffBars
		} else {
			e.st.SectionIndex = 0
			e.st.BarInSection = 0
			e.fireBarTriggers()
		}
		e.st.lastTempo = e.scaledTempoLocked()
		e.phase = phasePlaying
		e.startTickLoop()
		e.clockStart()
		e.emitEvent(EventStarted)
		e.emitSnapshot(now)
		return nil
	}
}

// Pause halts ticking without resetting position. Pending jumps are
// discarded.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != phasePlaying {
		return
	}
	e.phase = phasePaused
	e.pausedAt = e.now()
	e.st.Pending = nil
	e.stopTickLoop()
	e.clockStop()
	e.emitEvent(EventPaused)
}

// Stop fully resets the transport state.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == phaseStopped {
		return
	}
	e.haltLocked()
}

// haltLocked is Stop without the lock; the resolver uses it for song
// end and Fine.
func (e *Engine) haltLocked() {
	e.stopTickLoop()
	e.clockStop()
	e.st = NewTransportState()
	e.phase = phaseStopped
	e.emitEvent(EventStopped)
	e.emitSnapshot(e.now())
}

func (e *Engine) startTickLoop() {
	stop := make(chan struct{})
	e.stopTick = stop
	go e.run(stop)
}

func (e *Engine) stopTickLoop() {
	if e.stopTick != nil {
		close(e.stopTick)
		e.stopTick = nil
	}
}

func (e *Engine) run(stop chan struct{}) {
	ticker := time.NewTicker(e.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick(e.now())
		}
	}
}

// tick advances the clock by one observation of wall time. All state
// mutation for the tick happens synchronously under the lock.
func (e *Engine) tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != phasePlaying {
		return
	}
	// A bad bar must not freeze every client's display; skip the
	// action and keep the clock running.
	defer func() {
		if r := recover(); r != nil {
			debug.Log("tick", "recovered: %v", r)
		}
	}()

	bar := e.tickBar()
	if bar == nil {
		// A live edit removed the bar under the playhead, or emptied
		// the score entirely while counting off.
		e.songEnd(now)
		return
	}

	// Re-derive tempo every tick so transitions ramp smoothly. The
	// scaled value is compared so percentage changes also retime.
	bpm := e.effectiveTempoLocked()
	if scaled := e.scaledTempoLocked(); scaled != e.st.lastTempo {
		e.st.lastTempo = scaled
		if e.clock != nil {
			e.clock.Retime(scaled)
		}
	}

	elapsed := now.Sub(e.st.BarStart)
	barDur := e.tempo.BarDuration(bar, bpm)
	if elapsed >= barDur {
		e.completeBar(now)
	} else {
		beatDur := e.tempo.BeatDuration(bar, bpm)
		newBeat := int(elapsed / beatDur)
		if max := bar.TimeSignature.BeatsPerBar - 1; !bar.IsFermata && newBeat > max {
			newBeat = max
		}
		if newBeat != e.st.Beat {
			e.st.Beat = newBeat
			if p := e.st.Pending; p != nil && p.Mode == JumpNextBeat {
				e.st.Pending = nil
				e.seekToBar(p.BarNumber, now)
			}
		}
		subDur := e.tempo.SubdivisionDuration(bar, bpm)
		if subDur > 0 {
			sub := int((elapsed % beatDur) / subDur)
			// Truncated slice lengths can index one past the end in
			// the last nanoseconds of a beat.
			if max := bar.Subdivision.Slices() - 1; sub > max {
				sub = max
			}
			e.st.Subdivision = sub
		}
	}

	e.emitSnapshot(now)
}

// tickBar returns the bar whose duration governs the current tick:
// the countoff runs on a plain bar of the first section's meter.
func (e *Engine) tickBar() *score.FlatBar {
	if e.st.InCountoff {
		if len(e.flat) == 0 {
			return nil
		}
		return &score.FlatBar{
			SectionIndex:  0,
			TimeSignature: e.flat[0].TimeSignature,
			Bar:           score.Bar{Subdivision: score.SubdivisionNone},
		}
	}
	return e.currentFlat()
}

// currentFlat resolves the current position in the Bar Index, or nil
// when in countoff or when a live edit invalidated the position.
func (e *Engine) currentFlat() *score.FlatBar {
	if e.st.InCountoff {
		return nil
	}
	si := e.st.SectionIndex
	if si < 0 || si >= len(e.sectionStart) {
		return nil
	}
	if e.st.BarInSection < 0 || e.st.BarInSection >= len(e.score.Sections[si].Bars) {
		return nil
	}
	return &e.flat[e.sectionStart[si]+e.st.BarInSection]
}

func (e *Engine) effectiveTempoLocked() int {
	if e.st.InCountoff {
		return e.tempo.EffectiveTempo(-1, 0)
	}
	return e.tempo.EffectiveTempo(e.st.SectionIndex, e.st.BarInSection)
}

// scaledTempoLocked is the playback tempo after percentage scaling,
// i.e. what external gear should actually follow.
func (e *Engine) scaledTempoLocked() float64 {
	return float64(e.effectiveTempoLocked()) * float64(e.tempo.Percentage()) / 100.0
}

// fireBarTriggers dispatches the at-most-once-per-bar-entry side
// effects. Gated by LastTriggeredBar so loops and seeks landing on the
// same bar don't double-fire.
func (e *Engine) fireBarTriggers() {
	b := e.currentFlat()
	if b == nil {
		return
	}
	if b.AbsoluteNumber == e.st.LastTriggeredBar {
		return
	}
	e.st.LastTriggeredBar = b.AbsoluteNumber
	if b.OSCAddress == "" || e.osc == nil {
		return
	}
	args := oscout.ParseArgs(b.OSCArgs)
	if err := e.osc.Send(b.OSCAddress, args); err != nil {
		debug.Log("osc", "send %s failed: %v", b.OSCAddress, err)
	}
}

func (e *Engine) clockStart() {
	if e.clock == nil {
		return
	}
	if err := e.clock.Start(e.scaledTempoLocked()); err != nil {
		debug.Log("midi", "clock start failed: %v", err)
	}
}

func (e *Engine) clockContinue() {
	if e.clock == nil {
		return
	}
	if err := e.clock.Continue(e.scaledTempoLocked()); err != nil {
		debug.Log("midi", "clock continue failed: %v", err)
	}
}

func (e *Engine) clockStop() {
	if e.clock == nil {
		return
	}
	if err := e.clock.Stop(); err != nil {
		debug.Log("midi", "clock stop failed: %v", err)
	}
}

// Commands

// SeekToBar repositions playback. Direct seeks apply immediately;
// nextBeat and afterBar defer to the corresponding boundary.
func (e *Engine) SeekToBar(bar int, mode JumpMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == phaseStopped {
		return
	}
	switch mode {
	case JumpNextBeat, JumpAfterBar:
		e.st.Pending = &PendingJump{BarNumber: bar, Mode: mode}
	default:
		now := e.now()
		if e.phase == phasePaused {
			now = e.pausedAt
		}
		e.seekToBar(bar, now)
	}
}

// SetLoop replaces the song-level loop range.
func (e *Engine) SetLoop(loop score.LoopRange) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.score.Loop = loop
}

// SetLoopCurrentBar pins playback to the bar under the playhead, or
// releases the pin.
func (e *Engine) SetLoopCurrentBar(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !enabled {
		e.st.LoopBar = LoopCurrentBar{}
		return
	}
	if b := e.currentFlat(); b != nil {
		e.st.LoopBar = LoopCurrentBar{Enabled: true, BarNumber: b.AbsoluteNumber}
	}
}

// SetRepeatSong controls whether the song restarts at bar 1 (skipping
// countoff) when it ends.
func (e *Engine) SetRepeatSong(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeatSong = enabled
}

// SetTempoPercentage scales every tempo uniformly, live.
func (e *Engine) SetTempoPercentage(pct int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pct < score.MinTempoPercentage {
		pct = score.MinTempoPercentage
	}
	if pct > score.MaxTempoPercentage {
		pct = score.MaxTempoPercentage
	}
	e.score.TempoPercentage = pct
}

// TempoPercentage returns the current global scaling.
func (e *Engine) TempoPercentage() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score.TempoPercentage
}

// UpdateScore replaces the score wholesale and rebuilds the Bar Index
// before the next tick reads it. The in-flight position is preserved by
// index; if the edit removed the bar under the playhead the next tick
// treats it as song end.
func (e *Engine) UpdateScore(doc *score.Score) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setScore(doc)
}

// AdjustSyncOffset nudges the current bar's wall-clock progress by ms
// without changing the logical position. Positive values push playback
// later relative to the visuals. Cumulative; undone by ResetSyncOffset.
func (e *Engine) AdjustSyncOffset(ms int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := time.Duration(ms) * time.Millisecond
	e.st.BarStart = e.st.BarStart.Add(-d)
	e.st.SyncOffset += d
}

// AdjustSyncByBeat nudges the sync offset by one beat at the current
// tempo, forward (+1) or backward (-1).
func (e *Engine) AdjustSyncByBeat(direction int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.tickBar()
	if b == nil {
		return
	}
	beat := e.tempo.BeatDuration(b, e.effectiveTempoLocked())
	var d time.Duration
	if direction >= 0 {
		d = beat
	} else {
		d = -beat
	}
	e.st.BarStart = e.st.BarStart.Add(-d)
	e.st.SyncOffset += d
}

// ResetSyncOffset undoes every accumulated sync adjustment.
func (e *Engine) ResetSyncOffset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.BarStart = e.st.BarStart.Add(e.st.SyncOffset)
	e.st.SyncOffset = 0
}

// State builds a snapshot on demand (for a UI that missed the stream).
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.now())
}

func (e *Engine) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{
		SongName:          e.score.Name,
		TotalBars:         len(e.flat),
		Beat:              e.st.Beat,
		Subdivision:       e.st.Subdivision,
		TempoPercentage:   e.tempo.Percentage(),
		Playing:           e.phase == phasePlaying,
		Paused:            e.phase == phasePaused,
		InCountoff:        e.st.InCountoff,
		CountoffRemaining: e.st.CountoffRemaining,
		SyncOffsetMs:      e.st.SyncOffset.Milliseconds(),
		LoopCurrentBar:    e.st.LoopBar.Enabled,
		SubdivisionSlices: 1,
	}

	bpm := e.effectiveTempoLocked()
	snap.Tempo = bpm

	if e.st.InCountoff {
		snap.AbsoluteBar = 1 - e.st.CountoffRemaining
		if len(e.flat) > 0 {
			snap.TimeSignature = e.flat[0].TimeSignature
			snap.SectionName = e.flat[0].SectionName
		}
	} else if b := e.currentFlat(); b != nil {
		snap.AbsoluteBar = b.AbsoluteNumber
		snap.SectionName = b.SectionName
		snap.Chords = b.Chords
		snap.TimeSignature = b.TimeSignature
		snap.AccentPattern = b.AccentPattern
		snap.IsAccent = containsInt(b.AccentPattern, e.st.Beat)
		snap.IsFermata = b.IsFermata
		snap.SubdivisionSlices = b.Subdivision.Slices()
		snap.InTempoTransition = e.tempo.IsInTransition(e.st.SectionIndex, e.st.BarInSection)
		if snap.InTempoTransition && e.st.SectionIndex+1 < len(e.score.Sections) {
			snap.TempoRising = e.score.Sections[e.st.SectionIndex+1].Tempo > e.score.Sections[e.st.SectionIndex].Tempo
		}
	}

	if e.phase != phaseStopped {
		ref := now
		if e.phase == phasePaused {
			ref = e.pausedAt
		}
		if b := e.tickBar(); b != nil {
			dur := e.tempo.BarDuration(b, bpm)
			if dur > 0 {
				p := float64(ref.Sub(e.st.BarStart)) / float64(dur)
				if p < 0 {
					p = 0
				}
				if p > 1 {
					p = 1
				}
				snap.Progress = p
			}
		}
	}
	return snap
}

func (e *Engine) emitSnapshot(now time.Time) {
	snap := e.snapshotLocked(now)
	select {
	case e.Snapshots <- snap:
	default:
		// Replace the stale snapshot instead of blocking the tick.
		select {
		case <-e.Snapshots:
		default:
		}
		select {
		case e.Snapshots <- snap:
		default:
		}
	}
}

func (e *Engine) emitEvent(t EventType) {
	select {
	case e.Events <- Event{Type: t}:
	default:
	}
}
