// Package transport defines the abstract chat-channel boundary
// (spec.md §1, §6): something that can send a text message and
// receive inbound command messages. This package provides the
// interface, a Telegram Bot API implementation (telegram.go), a
// console implementation for local dry runs, and an in-memory
// implementation for tests.
package transport

import (
	"context"
	"strings"
)

// MaxMessageLen is the outbound wire limit (spec.md §6: "plain text
// messages <= 4096 characters, long messages split at line
// boundaries").
const MaxMessageLen = 4096

// Inbound is one message received from the chat channel.
type Inbound struct {
	Text string
}

// IsCommand reports whether an inbound message is a command (spec.md
// §6: "messages whose text begins with / are commands").
func (i Inbound) IsCommand() bool {
	return strings.HasPrefix(i.Text, "/")
}

// Transport is the contract the dispatcher depends on.
type Transport interface {
	// Send delivers text, splitting it into multiple sends at line
	// boundaries if it exceeds MaxMessageLen.
	Send(ctx context.Context, text string) error
	// Receive returns the channel of inbound messages; closed on
	// shutdown.
	Receive() <-chan Inbound
}

// Split breaks text into chunks no longer than MaxMessageLen, never
// cutting a line in half when avoidable.
func Split(text string) []string {
	if len(text) <= MaxMessageLen {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if current.Len() > 0 && current.Len()+len(line)+1 > MaxMessageLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if len(line) > MaxMessageLen {
			// A single line longer than the limit: hard-split it.
			for len(line) > MaxMessageLen {
				chunks = append(chunks, line[:MaxMessageLen])
				line = line[MaxMessageLen:]
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
