package realtime

import (
	"sync"

	"github.com/fr0schler/timetracker-realtime/internal/core/domain"
)

const defaultSendQueueSize = 64

// Client is one WebSocket connection owned by a user. The registry enqueues
// envelopes onto Send; the gateway's writer goroutine drains it. Send is
// never closed; done signals shutdown instead, so concurrent enqueuers
// can never hit a closed channel.
type Client struct {
	UserID int64
	ConnID string

	Send chan domain.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(userID int64, connID string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	return &Client{
		UserID: userID,
		ConnID: connID,
		Send:   make(chan domain.Envelope, queueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue attempts a non-blocking delivery. It reports false when the client
// is shut down or its queue is full; the caller treats that as a dead
// connection.
func (c *Client) Enqueue(env domain.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- env:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close marks the client as shut down. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once the client has shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
