package transport

import (
	"context"
	"sync"
)

// Memory is an in-process Transport: Send appends to Sent, and test
// code can push synthetic inbound messages onto the Receive channel
// via Inject. Used by the dispatcher and engine tests.
type Memory struct {
	mu   sync.Mutex
	sent []string
	ch   chan Inbound
}

// NewMemory constructs a Memory transport with a buffered inbound
// channel.
func NewMemory() *Memory {
	return &Memory{ch: make(chan Inbound, 16)}
}

// Send implements Transport, recording each split chunk.
func (m *Memory) Send(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Split(text)...)
	return nil
}

// Receive implements Transport.
func (m *Memory) Receive() <-chan Inbound {
	return m.ch
}

// Inject delivers a synthetic inbound message, as if the chat user
// had sent it.
func (m *Memory) Inject(text string) {
	m.ch <- Inbound{Text: text}
}

// Sent returns every chunk sent so far, in order.
func (m *Memory) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

// Close releases the inbound channel; safe to call once.
func (m *Memory) Close() {
	close(m.ch)
}

var _ Transport = (*Memory)(nil)
