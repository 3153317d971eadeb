package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dionzand/visual-metronome/engine"
	"github.com/dionzand/visual-metronome/theme"
)

// Model is the transport monitor: it renders the engine's snapshot
// stream and maps keys onto the transport command set. It is one
// consumer of the same snapshots the delivery layer fans out to
// network clients.
type Model struct {
	Engine *engine.Engine
	Theme  *theme.Theme

	snap       engine.Snapshot
	lastEvent  string
	repeatSong bool
	quitting   bool
}

type SnapshotMsg engine.Snapshot

type EventMsg engine.Event

func NewModel(e *engine.Engine, th *theme.Theme) Model {
	return Model{
		Engine: e,
		Theme:  th,
		snap:   e.State(),
	}
}

// ListenForSnapshots waits for the next per-tick snapshot.
func ListenForSnapshots(e *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg(<-e.Snapshots)
	}
}

// ListenForEvents waits for the next transport notification.
func ListenForEvents(e *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		return EventMsg(<-e.Events)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForSnapshots(m.Engine),
		ListenForEvents(m.Engine),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.Engine.Stop()
			return m, tea.Quit

		case " ":
			if m.snap.Playing {
				m.Engine.Pause()
			} else {
				m.Engine.Play()
			}

		case "s":
			m.Engine.Stop()

		case "left":
			m.Engine.SeekToBar(m.snap.AbsoluteBar-1, engine.JumpDirect)

		case "right":
			m.Engine.SeekToBar(m.snap.AbsoluteBar+1, engine.JumpDirect)

		case "enter":
			// Jump back to bar 1 at the end of the current bar.
			m.Engine.SeekToBar(1, engine.JumpAfterBar)

		case "l":
			m.Engine.SetLoopCurrentBar(!m.snap.LoopCurrentBar)

		case "r":
			m.repeatSong = !m.repeatSong
			m.Engine.SetRepeatSong(m.repeatSong)

		case "+", "=":
			m.Engine.SetTempoPercentage(m.Engine.TempoPercentage() + 5)

		case "-", "_":
			m.Engine.SetTempoPercentage(m.Engine.TempoPercentage() - 5)

		case "[":
			m.Engine.AdjustSyncByBeat(-1)

		case "]":
			m.Engine.AdjustSyncByBeat(+1)

		case "0":
			m.Engine.ResetSyncOffset()
		}

	case SnapshotMsg:
		m.snap = engine.Snapshot(msg)
		return m, ListenForSnapshots(m.Engine)

	case EventMsg:
		m.lastEvent = engine.Event(msg).Type.String()
		if engine.Event(msg).Type == engine.EventStopped {
			m.snap = m.Engine.State()
		}
		return m, ListenForEvents(m.Engine)
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	th := m.Theme
	s := m.snap
	var b strings.Builder

	b.WriteString(th.Title.Render("visual-metronome"))
	if s.SongName != "" {
		b.WriteString("  " + th.Value.Render(s.SongName))
	}
	b.WriteString("\n\n")

	if s.InCountoff {
		b.WriteString(th.Warning.Render(fmt.Sprintf("COUNTOFF  %d", s.CountoffRemaining)))
		b.WriteString("\n\n")
	} else {
		if s.SectionName != "" {
			b.WriteString(th.Section.Render(s.SectionName) + "\n")
		}
		bar := "-"
		if s.AbsoluteBar > 0 {
			bar = fmt.Sprintf("%d/%d", s.AbsoluteBar, s.TotalBars)
		}
		b.WriteString(th.Label.Render("bar ") + th.Value.Render(bar))
		b.WriteString(th.Label.Render("  beat ") + th.Value.Render(fmt.Sprintf("%d", s.Beat+1)))
		if s.SubdivisionSlices > 1 {
			b.WriteString(th.Label.Render("  sub ") + th.Value.Render(fmt.Sprintf("%d/%d", s.Subdivision+1, s.SubdivisionSlices)))
		}
		if s.Chords != "" {
			b.WriteString(th.Label.Render("  chords ") + th.Accent.Render(s.Chords))
		}
		b.WriteString("\n")
		b.WriteString(m.beatLamps(s) + "\n")
	}

	b.WriteString(m.progressBar(s.Progress, 32) + "\n\n")

	tempo := fmt.Sprintf("%d bpm", s.Tempo)
	if s.InTempoTransition {
		arrow := th.Symbols.TransitionDn
		if s.TempoRising {
			arrow = th.Symbols.TransitionUp
		}
		tempo += " " + string(arrow)
	}
	b.WriteString(th.Label.Render("tempo ") + th.Value.Render(tempo))
	b.WriteString(th.Label.Render("  scale ") + th.Value.Render(fmt.Sprintf("%d%%", s.TempoPercentage)))
	b.WriteString(th.Label.Render("  meter ") + th.Value.Render(fmt.Sprintf("%d/%d", s.TimeSignature.BeatsPerBar, s.TimeSignature.NoteValue)))
	if s.SyncOffsetMs != 0 {
		b.WriteString(th.Warning.Render(fmt.Sprintf("  sync %+dms", s.SyncOffsetMs)))
	}
	b.WriteString("\n")

	var flags []string
	if s.IsFermata {
		flags = append(flags, "fermata")
	}
	if s.LoopCurrentBar {
		flags = append(flags, "loop bar")
	}
	if m.repeatSong {
		flags = append(flags, "repeat song")
	}
	if s.Paused {
		flags = append(flags, "paused")
	}
	if len(flags) > 0 {
		b.WriteString(th.Accent.Render(strings.Join(flags, "  ")) + "\n")
	}
	if m.lastEvent != "" {
		b.WriteString(th.Muted.Render(m.lastEvent) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(th.Muted.Render("space play/pause  s stop  ←/→ seek  l loop bar  r repeat  +/- tempo %  [/] sync  0 reset sync  q quit"))
	b.WriteString("\n")
	return b.String()
}

// beatLamps draws one lamp per beat, highlighting the current beat and
// marking accented beats.
func (m Model) beatLamps(s engine.Snapshot) string {
	th := m.Theme
	beats := s.TimeSignature.BeatsPerBar
	if s.IsFermata {
		beats = 1
	}
	var b strings.Builder
	for i := 0; i < beats; i++ {
		accent := containsBeat(s.AccentPattern, i)
		switch {
		case i == s.Beat && accent:
			b.WriteString(th.Accent.Render(string(th.Symbols.BeatAccent)))
		case i == s.Beat:
			b.WriteString(th.Value.Render(string(th.Symbols.BeatOn)))
		default:
			b.WriteString(th.Muted.Render(string(th.Symbols.BeatOff)))
		}
		b.WriteString(" ")
	}
	return b.String()
}

func (m Model) progressBar(progress float64, width int) string {
	th := m.Theme
	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	return th.Value.Render(strings.Repeat(string(th.Symbols.ProgressFull), filled)) +
		th.Muted.Render(strings.Repeat(string(th.Symbols.ProgressPart), width-filled))
}

func containsBeat(pattern []int, beat int) bool {
	for _, p := range pattern {
		if p == beat {
			return true
		}
	}
	return false
}
