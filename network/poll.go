package network

import (
	"context"
	"sync"
	"time"
)

// PollConnection buffers outbound frames until the client polls for them.
// It backs the HTTP request/poll bridge.
type PollConnection struct {
	remote  string
	mutex   sync.Mutex
	pending [][]byte
	notify  chan struct{}
	closed  bool
}

func NewPollConnection(remote string) *PollConnection {
	return &PollConnection{
		remote: remote,
		notify: make(chan struct{}, 1),
	}
}

func (c *PollConnection) Send(data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	c.pending = append(c.pending, data)

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Drain returns every buffered frame in send order. With a positive wait it
// blocks until at least one frame is available, the wait elapses or ctx ends.
func (c *PollConnection) Drain(ctx context.Context, wait time.Duration) [][]byte {
	if frames := c.take(); len(frames) > 0 || wait <= 0 {
		return frames
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-c.notify:
			if frames := c.take(); len(frames) > 0 {
				return frames
			}
		case <-timer.C:
			return c.take()
		case <-ctx.Done():
			return c.take()
		}
	}
}

func (c *PollConnection) take() [][]byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	frames := c.pending
	c.pending = nil
	return frames
}

func (c *PollConnection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	c.pending = nil
	return nil
}

func (c *PollConnection) RemoteAddr() string {
	return c.remote
}
