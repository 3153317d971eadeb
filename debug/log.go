// Package debug is an opt-in category logger writing to a file sink,
// so transport timing is never disturbed by terminal output while the
// TUI owns the screen.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	sink    *os.File
	enabled bool
)

// Enable opens the log sink at ~/.config/visual-metronome/debug.log,
// truncating any previous run's log.
func Enable() error {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(home, ".config", "visual-metronome")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	sink = f
	enabled = true
	writeLocked("debug", "=== log opened ===")
	return nil
}

// Disable closes the log sink; further Log calls are no-ops.
func Disable() {
	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		sink.Close()
		sink = nil
	}
	enabled = false
}

// Log writes one categorized line. Safe to call from any goroutine,
// including the tick path; when logging is disabled it returns
// immediately.
func Log(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	writeLocked(category, fmt.Sprintf(format, args...))
}

func writeLocked(category, msg string) {
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(sink, "[%s] %-6s %s\n", ts, category, msg)
	// Flush per line so a crash mid-tick still leaves the trail.
	sink.Sync()
}
