package hub

import (
	"errors"
	"sync"
)

var (
	// ErrSubscriberClosed is returned when sending to a subscriber
	// whose connection has already gone away
	ErrSubscriberClosed = errors.New("subscriber closed")

	// ErrSubscriberFull is returned when a subscriber's outbound
	// buffer is full; a client that slow is treated as dead
	ErrSubscriberFull = errors.New("subscriber buffer full")
)

// Subscriber is one live client connection as the registry sees it.
// The registry only ever enqueues onto the outbound buffer; the
// connection's own write pump drains it to the wire, so a broadcast
// never blocks on a slow socket.
type Subscriber struct {
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// NewSubscriber creates a subscriber with the given outbound buffer size.
func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 32
	}
	return &Subscriber{
		send: make(chan []byte, buffer),
	}
}

// Send enqueues a message without blocking.
func (s *Subscriber) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}

	select {
	case s.send <- msg:
		return nil
	default:
		return ErrSubscriberFull
	}
}

// Outbound exposes the queue for the connection's write pump. The
// channel is closed when the subscriber is closed.
func (s *Subscriber) Outbound() <-chan []byte {
	return s.send
}

// Close marks the subscriber dead and closes the outbound channel.
// Safe to call more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.send)
}
