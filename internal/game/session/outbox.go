// Package session tracks live client channels, the identity bound to each,
// and fan-out delivery of encoded messages to them.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrChannelClosed is returned when pushing to a closed channel.
var ErrChannelClosed = errors.New("channel closed")

// ErrBufferFull is returned when a channel's outbound buffer is full.
var ErrBufferFull = errors.New("channel buffer full")

// Channel is one live outbound path to a client.
type Channel interface {
	// ID returns the stable channel identifier.
	ID() string
	// Push enqueues data without blocking.
	Push(data []byte) error
	// Close stops further delivery. It is idempotent.
	Close() error
	// IsClosed reports whether Close has been called.
	IsClosed() bool
}

// Outbox is a Channel backed by a buffered Go channel. The transport's write
// loop drains Events and writes each message to the socket.
type Outbox struct {
	id     string
	events chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox with a fresh random id.
//
// Postcondition: Returns an Outbox with an open events channel of
// bufferSize (64 when bufferSize <= 0).
func NewOutbox(bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		id:     uuid.NewString(),
		events: make(chan []byte, bufferSize),
	}
}

// ID returns the channel identifier.
func (o *Outbox) ID() string {
	return o.id
}

// Push enqueues data for the write loop.
//
// Postcondition: Data is enqueued, or ErrChannelClosed / ErrBufferFull is
// returned. Never blocks.
func (o *Outbox) Push(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s: %w", o.id, ErrChannelClosed)
	}
	select {
	case o.events <- data:
		return nil
	default:
		return fmt.Errorf("outbox %s: %w", o.id, ErrBufferFull)
	}
}

// Events returns the read side drained by the write loop. It is closed by
// Close.
func (o *Outbox) Events() <-chan []byte {
	return o.events
}

// Close marks the outbox closed and closes the events channel.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.events)
	}
	return nil
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
