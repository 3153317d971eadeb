package score

// FlatBar is one entry in the Bar Index: a bar with its section context
// folded in and a dense, 1-based absolute number. The flat array is
// rebuilt wholesale whenever the score is replaced and never mutated
// bar by bar, so the engine can address it by index in O(1).
type FlatBar struct {
	AbsoluteNumber int // 1-based, no gaps

	SectionIndex        int
	BarInSection        int // 0-based within the section
	SectionName         string
	SectionTempo        int
	TimeSignature       TimeSignature
	TempoTransitionBars int // of the FOLLOWING section, 0 if none

	Bar
}

// Flatten builds the Bar Index for a score. Returns nil when the score
// has nothing playable (no sections, or every section empty).
func Flatten(s *Score) []FlatBar {
	if s == nil {
		return nil
	}
	total := s.TotalBars()
	if total == 0 {
		return nil
	}

	flat := make([]FlatBar, 0, total)
	abs := 1
	for si := range s.Sections {
		sec := &s.Sections[si]
		nextTransition := 0
		if si+1 < len(s.Sections) {
			nextTransition = s.Sections[si+1].TempoTransitionBars
			if nextTransition > len(sec.Bars) {
				nextTransition = len(sec.Bars)
			}
		}
		for bi := range sec.Bars {
			flat = append(flat, FlatBar{
				AbsoluteNumber:      abs,
				SectionIndex:        si,
				BarInSection:        bi,
				SectionName:         sec.Name,
				SectionTempo:        sec.Tempo,
				TimeSignature:       sec.TimeSignature,
				TempoTransitionBars: nextTransition,
				Bar:                 sec.Bars[bi],
			})
			abs++
		}
	}
	return flat
}
