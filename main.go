package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dionzand/visual-metronome/config"
	"github.com/dionzand/visual-metronome/debug"
	"github.com/dionzand/visual-metronome/engine"
	"github.com/dionzand/visual-metronome/midiclock"
	"github.com/dionzand/visual-metronome/oscout"
	"github.com/dionzand/visual-metronome/score"
	"github.com/dionzand/visual-metronome/theme"
	"github.com/dionzand/visual-metronome/tui"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: visual-metronome <score.json>")
		os.Exit(1)
	}

	if os.Getenv("VM_DEBUG") != "" {
		if err := debug.Enable(); err != nil {
			fmt.Printf("debug log: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("config: %v\n", err)
		os.Exit(1)
	}

	doc, err := score.Load(os.Args[1])
	if err != nil {
		fmt.Printf("score: %v\n", err)
		os.Exit(1)
	}

	eng := engine.New(doc)
	eng.SetRepeatSong(cfg.UI.RepeatSong)

	if cfg.OSC.Enabled {
		eng.SetOSCSender(oscout.New(cfg.OSC.Host, cfg.OSC.Port))
	}

	if cfg.MIDI.Enabled {
		clock, err := midiclock.Open(cfg.MIDI.PortName)
		if err != nil {
			// Missing gear never blocks playback.
			fmt.Printf("midi clock: %v (continuing without)\n", err)
			debug.Log("midi", "open failed: %v", err)
		} else {
			eng.SetMIDIClock(clock)
			defer clock.Close()
		}
	}

	m := tui.NewModel(eng, theme.New())
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
