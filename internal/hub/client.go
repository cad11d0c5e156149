package hub

import (
	"context"
	"sync"
)

// Client is one accepted connection. Outbound frames go through a bounded
// queue drained by the connection's own write pump, so a slow peer never
// blocks fan-out to the others.
type Client struct {
	connID string
	send   chan []byte
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	peerID string
}

// NewClient creates a client with an outbound queue of queueSize frames.
func NewClient(connID string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Client{
		connID: connID,
		send:   make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
}

// ConnID returns the hub-assigned connection id.
func (c *Client) ConnID() string {
	return c.connID
}

// PeerID returns the identity bound by the last register on this connection, or "".
func (c *Client) PeerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerID
}

func (c *Client) bind(id string) {
	c.mu.Lock()
	c.peerID = id
	c.mu.Unlock()
}

// Enqueue queues a frame for delivery. It never blocks: it reports false when
// the connection is closed or its queue is full.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Outbound exposes the queue to the write pump.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done is closed once the connection is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection closed. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// WritePump drains the queue into write until the client or ctx is closed.
// A write error closes the client.
func (c *Client) WritePump(ctx context.Context, write func(context.Context, []byte) error) {
	for {
		select {
		case data := <-c.send:
			if err := write(ctx, data); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
