package transport

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Console is a dry-run Transport: Send prints each message to stdout
// framed by a terminal-width rule instead of reaching a real chat
// platform. Receive never yields anything, since there is no inbound
// channel to poll.
type Console struct {
	ch chan Inbound
}

// NewConsole constructs a Console transport.
func NewConsole() *Console {
	return &Console{ch: make(chan Inbound)}
}

// Send implements Transport.
func (c *Console) Send(ctx context.Context, text string) error {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	rule := strings.Repeat("-", width)
	for _, chunk := range Split(text) {
		fmt.Println(rule)
		fmt.Println(chunk)
	}
	fmt.Println(rule)
	return nil
}

// Receive implements Transport; the console has no inbound channel, so
// the control commands (/status, /pause, /resume, /logs) are
// unavailable in dry-run mode.
func (c *Console) Receive() <-chan Inbound {
	return c.ch
}

var _ Transport = (*Console)(nil)
