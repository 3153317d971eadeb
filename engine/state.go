package engine

import "time"

// JumpMode controls when a requested seek takes effect.
type JumpMode string

const (
	// JumpDirect repositions immediately.
	JumpDirect JumpMode = "direct"
	// JumpNextBeat waits for the next beat boundary.
	JumpNextBeat JumpMode = "nextBeat"
	// JumpAfterBar waits for the current bar to complete.
	JumpAfterBar JumpMode = "afterBar"
)

// PendingJump is a deferred seek (nextBeat or afterBar mode).
type PendingJump struct {
	BarNumber int
	Mode      JumpMode
}

// LoopCurrentBar pins playback to a single bar (practice loop).
type LoopCurrentBar struct {
	Enabled   bool
	BarNumber int
}

// repeatEntry tracks one start-repeat bar on the (single-level) repeat
// stack. TimesPlayed counts passes played so far, including the first.
type repeatEntry struct {
	StartBar    int
	EndBar      int
	TimesPlayed int
}

// redirectKey identifies one redirect arrow. Counters are kept per
// (source, target) pair so distinct redirects never share a count.
type redirectKey struct {
	From, To int
}

// TransportState is the engine's only mutable entity: one instance per
// running song, created on play from stopped, reset on stop, and
// mutated exclusively under the engine's lock.
type TransportState struct {
	InCountoff        bool
	CountoffRemaining int

	SectionIndex int
	BarInSection int
	Beat         int
	Subdivision  int
	BarStart     time.Time

	Pending    *PendingJump
	SyncOffset time.Duration
	LoopBar    LoopCurrentBar

	RepeatStack []repeatEntry
	PassNumber  int

	JumpedViaDSDC    bool
	WatchForCodaFine bool

	LastTriggeredBar int
	RedirectCounts   map[redirectKey]int

	lastTempo float64 // scaled BPM last given to the MIDI clock
}

// NewTransportState returns the initial state for a fresh run.
func NewTransportState() *TransportState {
	return &TransportState{
		PassNumber:       1,
		LastTriggeredBar: -1,
		RedirectCounts:   make(map[redirectKey]int),
	}
}

// repeatFor finds the stack entry for a start bar, or nil.
func (st *TransportState) repeatFor(startBar int) *repeatEntry {
	for i := range st.RepeatStack {
		if st.RepeatStack[i].StartBar == startBar {
			return &st.RepeatStack[i]
		}
	}
	return nil
}

// removeRepeat drops the stack entry for a start bar, if present.
func (st *TransportState) removeRepeat(startBar int) {
	for i := range st.RepeatStack {
		if st.RepeatStack[i].StartBar == startBar {
			st.RepeatStack = append(st.RepeatStack[:i], st.RepeatStack[i+1:]...)
			return
		}
	}
}
