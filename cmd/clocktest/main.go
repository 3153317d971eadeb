package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dionzand/visual-metronome/midiclock"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "burst":
		burst()
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Clock Test")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                      - List all MIDI output ports")
	fmt.Println("  burst <port> [bpm] [sec]  - Send Start + clock pulses, then Stop")
}

func listPorts() {
	fmt.Println("=== MIDI Output Ports ===")
	ports := midiclock.Ports()
	if len(ports) == 0 {
		fmt.Println("(none)")
		return
	}
	for i, name := range ports {
		fmt.Printf("%d: %s\n", i, name)
	}
}

func burst() {
	if len(os.Args) < 3 {
		usage()
		return
	}
	port := os.Args[2]
	bpm := 120.0
	seconds := 4
	if len(os.Args) > 3 {
		if v, err := strconv.ParseFloat(os.Args[3], 64); err == nil {
			bpm = v
		}
	}
	if len(os.Args) > 4 {
		if v, err := strconv.Atoi(os.Args[4]); err == nil {
			seconds = v
		}
	}

	clock, err := midiclock.Open(port)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer clock.Close()

	fmt.Printf("Sending clock at %.1f BPM for %ds (pulse every %s)\n",
		bpm, seconds, midiclock.PulseInterval(bpm))
	if err := clock.Start(bpm); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	time.Sleep(time.Duration(seconds) * time.Second)
	if err := clock.Stop(); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	fmt.Println("Done")
}
