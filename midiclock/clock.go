// Package midiclock keeps external MIDI gear in sync with the
// transport: Start/Continue/Stop realtime messages plus a 24 PPQN
// pulse stream at the playback tempo.
package midiclock

import (
	"fmt"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver

	"github.com/dionzand/visual-metronome/debug"
)

// PPQN is the MIDI clock pulse density, fixed by the MIDI spec.
const PPQN = 24

// Clock sends MIDI realtime messages to one output port. The pulse
// timer runs on its own goroutine, independent of the transport tick,
// and is retimed by replacing its ticker when the tempo moves.
type Clock struct {
	mu      sync.Mutex
	send    func(midi.Message) error
	stop    chan struct{}
	running bool
}

// Open finds an output port by name and attaches a clock to it.
func Open(portName string) (*Clock, error) {
	for _, port := range midi.GetOutPorts() {
		if port.String() == portName {
			send, err := midi.SendTo(port)
			if err != nil {
				return nil, fmt.Errorf("midiclock: open %q: %w", portName, err)
			}
			return New(send), nil
		}
	}
	return nil, fmt.Errorf("midiclock: no output port %q", portName)
}

// New attaches a clock to an arbitrary sender.
func New(send func(midi.Message) error) *Clock {
	return &Clock{send: send}
}

// Start sends MIDI Start and begins pulsing at the given BPM.
func (c *Clock) Start(bpm float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.send(midi.Start())
	c.startPulseLocked(bpm)
	return err
}

// Continue sends MIDI Continue (resume from pause) and begins pulsing.
func (c *Clock) Continue(bpm float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.send(midi.Continue())
	c.startPulseLocked(bpm)
	return err
}

// Stop sends MIDI Stop and cancels the pulse timer.
func (c *Clock) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPulseLocked()
	return c.send(midi.Stop())
}

// Retime changes the pulse rate without re-sending Start. No-op when
// the clock isn't running.
func (c *Clock) Retime(bpm float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.stopPulseLocked()
	c.startPulseLocked(bpm)
}

// Close cancels the pulse timer without sending anything.
func (c *Clock) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPulseLocked()
}

func (c *Clock) startPulseLocked(bpm float64) {
	if bpm <= 0 {
		return
	}
	c.stopPulseLocked()
	stop := make(chan struct{})
	c.stop = stop
	c.running = true
	interval := PulseInterval(bpm)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.send(midi.TimingClock()); err != nil {
					debug.Log("midi", "clock pulse failed: %v", err)
				}
			}
		}
	}()
}

func (c *Clock) stopPulseLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.running = false
}

// PulseInterval is the time between clock pulses at a tempo.
func PulseInterval(bpm float64) time.Duration {
	return time.Duration(float64(time.Minute) / (PPQN * bpm))
}

// Ports lists the available MIDI output port names.
func Ports() []string {
	var names []string
	for _, port := range midi.GetOutPorts() {
		names = append(names, port.String())
	}
	return names
}
