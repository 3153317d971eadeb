// Package oscout sends the score's per-bar OSC triggers.
package oscout

import (
	"strconv"
	"strings"

	"github.com/chabad360/go-osc/osc"

	"github.com/dionzand/visual-metronome/debug"
)

// Client wraps a UDP OSC client pointed at a single target. Sends are
// fire-and-forget; a failure is the caller's to log, never fatal.
type Client struct {
	client *osc.Client
	host   string
	port   int
}

// New creates a client for the given target.
func New(host string, port int) *Client {
	return &Client{
		client: osc.NewClient(host, port),
		host:   host,
		port:   port,
	}
}

// Target returns the configured host:port for display.
func (c *Client) Target() string {
	return c.host + ":" + strconv.Itoa(c.port)
}

// Send builds and sends one OSC message.
func (c *Client) Send(address string, args []any) error {
	msg := osc.NewMessage(address)
	for _, a := range args {
		msg.Append(a)
	}
	debug.Log("osc", "send %s %v -> %s", address, args, c.Target())
	return c.client.Send(msg)
}

// ParseArgs turns a bar's comma-separated argument string into typed
// OSC arguments: integers become int32, decimals float32, everything
// else a string. An empty string yields no arguments.
func ParseArgs(raw string) []any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	args := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i, err := strconv.ParseInt(p, 10, 32); err == nil {
			args = append(args, int32(i))
			continue
		}
		if f, err := strconv.ParseFloat(p, 32); err == nil {
			args = append(args, float32(f))
			continue
		}
		args = append(args, p)
	}
	return args
}
