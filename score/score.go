package score

import (
	"encoding/json"
	"os"
)

// Tempo percentage bounds; the percentage scales every duration uniformly.
const (
	MinTempoPercentage = 25
	MaxTempoPercentage = 150
)

// Subdivision names the per-beat slicing a bar displays while playing.
type Subdivision string

const (
	SubdivisionNone       Subdivision = "none"
	SubdivisionEighth     Subdivision = "8th"
	SubdivisionSixteenth  Subdivision = "16th"
	SubdivisionTriplet    Subdivision = "triplet"
	SubdivisionQuintuplet Subdivision = "quintuplet"
	SubdivisionSextuplet  Subdivision = "sextuplet"
)

// Slices returns how many slices one beat is divided into.
func (s Subdivision) Slices() int {
	switch s {
	case SubdivisionEighth:
		return 2
	case SubdivisionTriplet:
		return 3
	case SubdivisionSixteenth:
		return 4
	case SubdivisionQuintuplet:
		return 5
	case SubdivisionSextuplet:
		return 6
	default:
		return 1
	}
}

// FermataDurationType selects how a fermata hold is measured.
type FermataDurationType string

const (
	FermataBeats   FermataDurationType = "beats"
	FermataSeconds FermataDurationType = "seconds"
)

// TimeSignature is beats per bar over a note value (the note value only
// matters for display; durations derive from beatsPerBar and BPM).
type TimeSignature struct {
	BeatsPerBar int `json:"beatsPerBar"`
	NoteValue   int `json:"noteValue"`
}

// LoopRange is the song-level practice loop, in absolute bar numbers.
type LoopRange struct {
	Enabled bool `json:"enabled"`
	Start   int  `json:"start"`
	End     int  `json:"end"`
}

// Bar is one measure as authored in the editor.
type Bar struct {
	Chords string `json:"chords,omitempty"`

	// Redirect jumps to an absolute bar, up to RedirectCount times per pass.
	Redirect      int `json:"redirect,omitempty"` // 0 = none
	RedirectCount int `json:"redirectCount,omitempty"`

	IsFermata           bool                `json:"isFermata,omitempty"`
	FermataDuration     float64             `json:"fermataDuration,omitempty"`
	FermataDurationType FermataDurationType `json:"fermataDurationType,omitempty"`

	AccentPattern []int       `json:"accentPattern,omitempty"` // beat indices, 0-based
	Subdivision   Subdivision `json:"subdivision,omitempty"`

	StartRepeat bool  `json:"startRepeat,omitempty"`
	EndRepeat   bool  `json:"endRepeat,omitempty"`
	Volta       []int `json:"volta,omitempty"` // pass numbers this bar plays on

	Segno    bool `json:"segno,omitempty"`
	Coda     bool `json:"coda,omitempty"`
	DalSegno bool `json:"dalSegno,omitempty"`
	DaCapo   bool `json:"daCapo,omitempty"`
	ToCoda   bool `json:"toCoda,omitempty"`
	Fine     bool `json:"fine,omitempty"`

	OSCAddress string `json:"oscAddress,omitempty"`
	OSCArgs    string `json:"oscArgs,omitempty"`
}

// Section is a contiguous run of bars sharing tempo and time signature.
type Section struct {
	Name          string        `json:"name"`
	Tempo         int           `json:"tempo"`
	TimeSignature TimeSignature `json:"timeSignature"`

	// TempoTransitionBars ramps tempo linearly from the PREVIOUS section's
	// tempo to this one's, over that many bars at the end of the previous
	// section. Clamped to the previous section's length by Normalize.
	TempoTransitionBars int `json:"tempoTransitionBars,omitempty"`

	Bars []Bar `json:"bars"`
}

// Score is the document the editor hands to the playback core. The core
// treats it as an immutable snapshot per update.
type Score struct {
	Name            string    `json:"name"`
	CountoffBars    int       `json:"countoffBars"`
	TempoPercentage int       `json:"tempoPercentage"`
	Sections        []Section `json:"sections"`
	Loop            LoopRange `json:"loop"`
}

// Normalize applies defaults and clamps fields the core must not trust.
// Call it once on every document before handing it to the engine.
func (s *Score) Normalize() {
	if s.TempoPercentage == 0 {
		s.TempoPercentage = 100
	}
	if s.TempoPercentage < MinTempoPercentage {
		s.TempoPercentage = MinTempoPercentage
	}
	if s.TempoPercentage > MaxTempoPercentage {
		s.TempoPercentage = MaxTempoPercentage
	}
	if s.CountoffBars < 0 {
		s.CountoffBars = 0
	}
	for i := range s.Sections {
		sec := &s.Sections[i]
		if sec.Tempo <= 0 {
			sec.Tempo = 120
		}
		if sec.TimeSignature.BeatsPerBar < 1 {
			sec.TimeSignature.BeatsPerBar = 4
		}
		if sec.TimeSignature.NoteValue <= 0 {
			sec.TimeSignature.NoteValue = 4
		}
		if sec.TempoTransitionBars < 0 {
			sec.TempoTransitionBars = 0
		}
		// A transition can never be longer than the section it ramps across.
		if i > 0 && sec.TempoTransitionBars > len(s.Sections[i-1].Bars) {
			sec.TempoTransitionBars = len(s.Sections[i-1].Bars)
		}
		for j := range sec.Bars {
			b := &sec.Bars[j]
			if b.Redirect != 0 && b.RedirectCount < 1 {
				b.RedirectCount = 1
			}
			if b.Subdivision == "" {
				b.Subdivision = SubdivisionNone
			}
			if b.IsFermata {
				if b.FermataDurationType == "" {
					b.FermataDurationType = FermataBeats
				}
				if b.FermataDuration <= 0 {
					b.FermataDuration = float64(sec.TimeSignature.BeatsPerBar)
				}
			}
		}
	}
}

// TotalBars counts bars across all sections.
func (s *Score) TotalBars() int {
	n := 0
	for i := range s.Sections {
		n += len(s.Sections[i].Bars)
	}
	return n
}

// Load reads and normalizes a score document from disk.
func Load(path string) (*Score, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Score
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	s.Normalize()
	return &s, nil
}

// Save writes the score document to disk.
func (s *Score) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
