package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/auth"
)

// Client is one live connection as seen by the hub. The transport drains
// Send; the hub only ever enqueues without blocking.
type Client struct {
	ID          string
	Identity    auth.Identity
	EventID     uuid.UUID
	RoundID     uuid.UUID // set for round timer connections
	ConnectedAt time.Time

	send chan []byte

	mu     sync.Mutex
	closed bool

	// rooms is guarded by Hub.mu.
	rooms map[RoomKey]struct{}
}

// NewClient creates a client with a bounded send queue.
func NewClient(identity auth.Identity, eventID uuid.UUID, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		ID:          uuid.NewString(),
		Identity:    identity,
		EventID:     eventID,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, buffer),
		rooms:       make(map[RoomKey]struct{}),
	}
}

// Send is closed once the client has been dropped.
func (c *Client) Send() <-chan []byte { return c.send }

// enqueue reports false when the queue is full or closed.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Closed reports whether the hub has dropped the client.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
