package network

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrMissingType      = errors.New("action type missing")
	ErrBadFrame         = errors.New("malformed client frame")
)

const writeWait = 10 * time.Second

// Connection is the transport handle a session writes encoded messages to.
type Connection interface {
	Send(data []byte) error
	Close() error
	RemoteAddr() string
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	heartbeat time.Duration
	closeOnce sync.Once
	done      chan struct{}
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn, done: make(chan struct{})}
}

func (c *WSConnection) Send(data []byte) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadAction blocks until the next client frame arrives.
func (c *WSConnection) ReadAction() (*Action, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	action, err := DecodeAction(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return action, nil
}

// SetHeartbeat arms the read deadline and starts pinging the peer every
// interval. Any frame or pong from the peer pushes the deadline out again.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.heartbeat = interval
	c.extendDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
	go c.pingLoop()
}

// Touch extends the read deadline after a frame was received.
func (c *WSConnection) Touch() {
	if c.heartbeat > 0 {
		c.extendDeadline()
	}
}

func (c *WSConnection) extendDeadline() {
	c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
}

func (c *WSConnection) pingLoop() {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sendMutex.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.sendMutex.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *WSConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.sendMutex.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.sendMutex.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *WSConnection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
