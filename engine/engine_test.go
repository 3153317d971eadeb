package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/dionzand/visual-metronome/score"
)

type fakeOSC struct {
	mu    sync.Mutex
	addrs []string
	args  [][]any
}

func (f *fakeOSC) Send(address string, args []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrs = append(f.addrs, address)
	f.args = append(f.args, args)
	return nil
}

func (f *fakeOSC) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.addrs)
}

type fakeClock struct {
	mu        sync.Mutex
	starts    int
	continues int
	stops     int
	retimes   []float64
}

func (f *fakeClock) Start(bpm float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeClock) Continue(bpm float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.continues++
	return nil
}

func (f *fakeClock) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeClock) Retime(bpm float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retimes = append(f.retimes, bpm)
}

func (f *fakeClock) counts() (starts, continues, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.continues, f.stops
}

// lockedNow is a settable fake clock safe to share with the tick
// scheduler goroutine.
type lockedNow struct {
	mu  sync.Mutex
	cur time.Time
}

func (n *lockedNow) now() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cur
}

func (n *lockedNow) advance(d time.Duration) {
	n.mu.Lock()
	n.cur = n.cur.Add(d)
	n.mu.Unlock()
}

func TestPlayWithNothingToPlay(t *testing.T) {
	e := New(&score.Score{Name: "empty"})
	if err := e.Play(); err != ErrNothingToPlay {
		t.Fatalf("got %v, want ErrNothingToPlay", err)
	}
	if e.State().Playing {
		t.Error("engine must refuse to enter playing")
	}
}

func TestPlayPauseResumeUsesMIDIContinue(t *testing.T) {
	e := New(oneSection(make([]score.Bar, 4)))
	clk := &lockedNow{cur: time.Unix(100, 0)}
	e.now = clk.now
	fc := &fakeClock{}
	e.SetMIDIClock(fc)

	if err := e.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	clk.advance(time.Second) // mid-bar at 120 BPM 4/4

	e.Pause()
	progressAtPause := e.State().Progress

	clk.advance(5 * time.Second) // paused time must not count
	e.Pause()                    // no-op while paused

	if err := e.Play(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := e.State().Progress; got != progressAtPause {
		t.Errorf("progress after resume: got %v, want %v", got, progressAtPause)
	}

	starts, continues, stops := fc.counts()
	if starts != 1 || continues != 1 || stops != 1 {
		t.Errorf("clock calls: starts=%d continues=%d stops=%d, want 1/1/1", starts, continues, stops)
	}
	e.Stop()
}

func TestPauseDiscardsPendingJump(t *testing.T) {
	e := newTestEngine(oneSection(make([]score.Bar, 4)))
	e.st.Pending = &PendingJump{BarNumber: 3, Mode: JumpNextBeat}
	e.Pause()
	if e.st.Pending != nil {
		t.Error("pause must discard pending jumps")
	}
}

func TestTickAdvancesBeatAndTakesNextBeatJump(t *testing.T) {
	e := newTestEngine(oneSection(make([]score.Bar, 4)))
	e.st.Pending = &PendingJump{BarNumber: 3, Mode: JumpNextBeat}

	// 120 BPM 4/4: beats land every 500ms.
	e.tick(time.Unix(0, 0).Add(600 * time.Millisecond))
	if e.st.Pending != nil {
		t.Error("next-beat jump should fire on the beat change")
	}
	if b := e.currentFlat(); b == nil || b.AbsoluteNumber != 3 {
		t.Errorf("landed %+v, want bar 3", b)
	}
}

func TestTickCompletesBarAtDuration(t *testing.T) {
	e := newTestEngine(oneSection(make([]score.Bar, 4)))

	e.tick(time.Unix(0, 0).Add(2 * time.Second)) // exactly one 4/4 bar at 120
	if b := e.currentFlat(); b == nil || b.AbsoluteNumber != 2 {
		t.Errorf("landed %+v, want bar 2", b)
	}
	if e.st.Beat != 0 {
		t.Errorf("beat after completion: got %d, want 0", e.st.Beat)
	}
}

func TestTickComputesSubdivision(t *testing.T) {
	bars := make([]score.Bar, 2)
	bars[0].Subdivision = score.SubdivisionSixteenth
	e := newTestEngine(oneSection(bars))

	// 300ms into a 500ms beat: third 16th slice.
	e.tick(time.Unix(0, 0).Add(300 * time.Millisecond))
	if e.st.Subdivision != 2 {
		t.Errorf("subdivision: got %d, want 2", e.st.Subdivision)
	}
}

func TestSubdivisionClampedAtBeatBoundary(t *testing.T) {
	bars := make([]score.Bar, 2)
	bars[0].Subdivision = score.SubdivisionTriplet
	e := newTestEngine(oneSection(bars))

	// A triplet slice of a 500ms beat truncates to 166666666ns, so the
	// last nanoseconds of the beat would otherwise index slice 3.
	e.tick(time.Unix(0, 0).Add(500*time.Millisecond - time.Nanosecond))
	if e.st.Subdivision != 2 {
		t.Errorf("subdivision: got %d, want clamp to 2", e.st.Subdivision)
	}
	if e.st.Beat != 0 {
		t.Errorf("beat: got %d, want 0", e.st.Beat)
	}
}

func TestSyncOffsetRoundTrip(t *testing.T) {
	e := newTestEngine(oneSection(make([]score.Bar, 4)))
	at := time.Unix(0, 0).Add(time.Second)

	before := e.snapshotLocked(at).Progress
	e.AdjustSyncOffset(50)
	shifted := e.snapshotLocked(at).Progress
	if shifted == before {
		t.Fatal("offset should move the progress fraction")
	}
	e.ResetSyncOffset()
	after := e.snapshotLocked(at).Progress
	if after != before {
		t.Errorf("round trip: got %v, want %v", after, before)
	}
	if e.st.SyncOffset != 0 {
		t.Errorf("offset after reset: got %v, want 0", e.st.SyncOffset)
	}
}

func TestAdjustSyncByBeatAccumulates(t *testing.T) {
	e := newTestEngine(oneSection(make([]score.Bar, 4)))
	e.AdjustSyncByBeat(+1)
	if e.st.SyncOffset != 500*time.Millisecond {
		t.Errorf("one beat at 120: got %v, want 500ms", e.st.SyncOffset)
	}
	e.AdjustSyncByBeat(-1)
	if e.st.SyncOffset != 0 {
		t.Errorf("offsets should cancel: got %v", e.st.SyncOffset)
	}
}

func TestTriggersFireOncePerBarEntry(t *testing.T) {
	bars := make([]score.Bar, 2)
	bars[0].OSCAddress = "/cue/1"
	bars[0].OSCArgs = "60, 0.5, go"
	osc := &fakeOSC{}
	e := newTestEngine(oneSection(bars))
	e.osc = osc

	e.fireBarTriggers()
	e.fireBarTriggers()
	if osc.count() != 1 {
		t.Fatalf("sends: got %d, want 1", osc.count())
	}
	if osc.addrs[0] != "/cue/1" {
		t.Errorf("address: got %q", osc.addrs[0])
	}
	want := []any{int32(60), float32(0.5), "go"}
	got := osc.args[0]
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("args: got %#v, want %#v", got, want)
	}
}

func TestTempoChangeRetimesClock(t *testing.T) {
	e := newTestEngine(transitionScore())
	fc := &fakeClock{}
	e.clock = fc
	e.st.lastTempo = 100
	e.st.SectionIndex = 0
	e.st.BarInSection = 2 // first bar of the ramp, 110 BPM

	e.tick(time.Unix(0, 0).Add(100 * time.Millisecond))
	// A live percentage change must retime too.
	e.SetTempoPercentage(50)
	e.tick(time.Unix(0, 0).Add(200 * time.Millisecond))

	snap := e.snapshotLocked(time.Unix(0, 0).Add(200 * time.Millisecond))
	if !snap.InTempoTransition || !snap.TempoRising {
		t.Errorf("transition flags: %+v", snap)
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.retimes) != 2 || fc.retimes[0] != 110 || fc.retimes[1] != 55 {
		t.Errorf("retimes: got %v, want [110 55]", fc.retimes)
	}
}

func TestStopResetsTransportState(t *testing.T) {
	e := newTestEngine(oneSection(make([]score.Bar, 4)))
	e.st.PassNumber = 3
	e.st.SyncOffset = time.Second
	e.st.LoopBar = LoopCurrentBar{Enabled: true, BarNumber: 2}
	e.st.RedirectCounts[redirectKey{From: 2, To: 1}] = 1

	e.Stop()
	if e.phase != phaseStopped {
		t.Fatal("expected stopped")
	}
	if e.st.PassNumber != 1 || e.st.SyncOffset != 0 || e.st.LoopBar.Enabled {
		t.Errorf("state not reset: %+v", e.st)
	}
	if len(e.st.RedirectCounts) != 0 {
		t.Error("redirect tracking not reset")
	}
	if e.st.LastTriggeredBar != -1 {
		t.Errorf("trigger marker: got %d, want -1", e.st.LastTriggeredBar)
	}
}

func TestUpdateScoreKeepsValidPosition(t *testing.T) {
	e := newTestEngine(oneSection(make([]score.Bar, 5)))
	e.st.BarInSection = 2 // bar 3

	edited := oneSection(make([]score.Bar, 5))
	edited.Sections[0].Bars[2].Chords = "Dm7"
	e.UpdateScore(edited)

	b := e.currentFlat()
	if b == nil || b.AbsoluteNumber != 3 || b.Chords != "Dm7" {
		t.Errorf("position after live edit: %+v", b)
	}
}

func TestUpdateScoreInvalidPositionEndsSong(t *testing.T) {
	e := newTestEngine(oneSection(make([]score.Bar, 5)))
	e.st.BarInSection = 4 // bar 5
	drainEvents(e)

	e.UpdateScore(oneSection(make([]score.Bar, 2)))
	e.tick(time.Unix(0, 0).Add(100 * time.Millisecond))

	if e.phase != phaseStopped {
		t.Fatal("orphaned position must end the song on the next tick")
	}
	var ended bool
	for _, ev := range drainEvents(e) {
		if ev == EventSongEnded {
			ended = true
		}
	}
	if !ended {
		t.Error("expected song-ended event")
	}
}

func TestUpdateScoreToEmptyDuringCountoffEndsSong(t *testing.T) {
	s := oneSection(make([]score.Bar, 4))
	s.CountoffBars = 2
	e := New(s)
	e.phase = phasePlaying
	e.st.InCountoff = true
	e.st.CountoffRemaining = 2
	e.st.BarStart = time.Unix(0, 0)
	drainEvents(e)

	e.UpdateScore(&score.Score{})
	e.tick(time.Unix(0, 0).Add(100 * time.Millisecond))

	if e.phase != phaseStopped {
		t.Fatal("emptied score during countoff must end the song")
	}
	var ended bool
	for _, ev := range drainEvents(e) {
		if ev == EventSongEnded {
			ended = true
		}
	}
	if !ended {
		t.Error("expected song-ended event")
	}
}

func TestSnapshotCountoffPosition(t *testing.T) {
	s := oneSection(make([]score.Bar, 4))
	s.CountoffBars = 2
	e := New(s)
	e.phase = phasePlaying
	e.st.InCountoff = true
	e.st.CountoffRemaining = 2
	e.st.BarStart = time.Unix(0, 0)

	snap := e.snapshotLocked(time.Unix(0, 0))
	if snap.AbsoluteBar != -1 {
		t.Errorf("countoff bar: got %d, want -1", snap.AbsoluteBar)
	}
	if !snap.InCountoff || snap.CountoffRemaining != 2 {
		t.Errorf("countoff flags: %+v", snap)
	}
}

func TestSnapshotAccentIsExplicitOnly(t *testing.T) {
	bars := make([]score.Bar, 1)
	bars[0].AccentPattern = []int{0, 2}
	e := newTestEngine(oneSection(bars))

	e.st.Beat = 2
	if !e.snapshotLocked(time.Unix(0, 0)).IsAccent {
		t.Error("beat 2 is in the accent pattern")
	}
	// No implicit accent on beat 1 when the pattern doesn't name it.
	e.st.Beat = 1
	if e.snapshotLocked(time.Unix(0, 0)).IsAccent {
		t.Error("beat 1 is not in the accent pattern")
	}
}

func TestSeekToBarCommandModes(t *testing.T) {
	e := newTestEngine(oneSection(make([]score.Bar, 6)))

	e.SeekToBar(4, JumpDirect)
	if b := e.currentFlat(); b == nil || b.AbsoluteNumber != 4 {
		t.Errorf("direct seek landed %+v, want bar 4", b)
	}

	e.SeekToBar(2, JumpAfterBar)
	if e.st.Pending == nil || e.st.Pending.Mode != JumpAfterBar {
		t.Fatal("afterBar seek should defer")
	}
	if b := e.currentFlat(); b.AbsoluteNumber != 4 {
		t.Error("deferred seek must not move yet")
	}
}
