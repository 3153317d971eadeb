package engine

import "github.com/dionzand/visual-metronome/score"

// Snapshot is the per-tick state pushed to the delivery layer. It is
// immutable once emitted; clients render it as-is.
type Snapshot struct {
	SongName    string `json:"songName"`
	SectionName string `json:"sectionName"`

	AbsoluteBar int `json:"absoluteBar"` // non-positive during countoff
	TotalBars   int `json:"totalBars"`
	Beat        int `json:"beat"` // 0-based
	Subdivision int `json:"subdivision"`

	Progress float64 `json:"progress"` // 0..1 within the current bar

	Chords        string              `json:"chords,omitempty"`
	TimeSignature score.TimeSignature `json:"timeSignature"`
	AccentPattern []int               `json:"accentPattern,omitempty"`
	IsAccent      bool                `json:"isAccent"`

	Tempo             int  `json:"tempo"` // effective, before percentage
	TempoPercentage   int  `json:"tempoPercentage"`
	InTempoTransition bool `json:"inTempoTransition"`
	TempoRising       bool `json:"tempoRising,omitempty"` // valid while in transition

	Playing           bool  `json:"playing"`
	Paused            bool  `json:"paused"`
	InCountoff        bool  `json:"inCountoff"`
	CountoffRemaining int   `json:"countoffRemaining,omitempty"`
	IsFermata         bool  `json:"isFermata"`
	SubdivisionSlices int   `json:"subdivisionSlices"`
	SyncOffsetMs      int64 `json:"syncOffsetMs"`
	LoopCurrentBar    bool  `json:"loopCurrentBar"`
}

// EventType enumerates the discrete notifications the engine emits
// alongside the snapshot stream.
type EventType int

const (
	EventStarted EventType = iota
	EventPaused
	EventStopped
	EventSongEnded
)

// Event is a discrete transport notification.
type Event struct {
	Type EventType
}

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "playback-started"
	case EventPaused:
		return "paused"
	case EventStopped:
		return "stopped"
	case EventSongEnded:
		return "song-ended"
	default:
		return "unknown"
	}
}
