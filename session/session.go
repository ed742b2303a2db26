// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/puzzleduel/logger"
	"github.com/wfunc/puzzleduel/network"
)

// ErrSessionEnded is returned for actions that arrive after the session was
// torn down.
var ErrSessionEnded = errors.New("session ended")

// DropCounter is told whenever a frame could not be queued for a session.
type DropCounter interface {
	IncDeliveriesDropped()
}

// Session is one client connection. Outbound frames go through a buffered
// outbox drained by a single writer goroutine, so frames reach the
// connection in the order they were enqueued and enqueueing never blocks.
type Session struct {
	ID        string
	Conn      network.Connection
	CreatedAt time.Time

	mutex      sync.Mutex
	lastActive time.Time
	outbox     chan []byte
	closed     bool
	done       chan struct{}

	// actionMutex serializes client actions with teardown.
	actionMutex sync.Mutex
	ended       bool
}

func NewSession(id string, conn network.Connection, outboxSize int) *Session {
	if outboxSize <= 0 {
		outboxSize = 1
	}
	now := time.Now()
	s := &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		outbox:     make(chan []byte, outboxSize),
		done:       make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Enqueue queues a frame for sending. It reports false when the session is
// closed or its outbox is full.
func (s *Session) Enqueue(data []byte) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.outbox <- data:
		return true
	default:
		return false
	}
}

// Do runs fn unless the session has ended. Teardown waits for a running fn,
// so nothing fn changes can outlive End.
func (s *Session) Do(fn func() error) error {
	s.actionMutex.Lock()
	defer s.actionMutex.Unlock()

	if s.ended {
		return ErrSessionEnded
	}
	return fn()
}

// End stops further actions. It waits for an action in progress.
func (s *Session) End() {
	s.actionMutex.Lock()
	s.ended = true
	s.actionMutex.Unlock()
}

// Touch records client activity.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastActive
}

func (s *Session) writeLoop() {
	defer close(s.done)
	for data := range s.outbox {
		if err := s.Conn.Send(data); err != nil {
			logger.Log.Debugf("Send to session %s failed: %v", s.ID, err)
		}
	}
}

// Close flushes queued frames and closes the connection. It is idempotent.
func (s *Session) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	close(s.outbox)
	s.mutex.Unlock()

	<-s.done
	return s.Conn.Close()
}

// Manager is the connection registry. It issues connection ids and delivers
// messages to them by id.
type Manager struct {
	sessions   map[string]*Session
	mutex      sync.RWMutex
	outboxSize int
	drops      DropCounter
}

func NewManager(outboxSize int, drops DropCounter) *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		outboxSize: outboxSize,
		drops:      drops,
	}
}

// Open registers conn under a fresh connection id.
func (m *Manager) Open(conn network.Connection) *Session {
	s := NewSession(uuid.New().String(), conn, m.outboxSize)

	m.mutex.Lock()
	m.sessions[s.ID] = s
	m.mutex.Unlock()
	return s
}

// Take removes and returns the session. Only one caller gets it.
func (m *Manager) Take(sessionID string) (*Session, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	session, exists := m.sessions[sessionID]
	if exists {
		delete(m.sessions, sessionID)
	}
	return session, exists
}

// All returns a snapshot of the registered sessions.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// IdleSince returns the sessions with no client activity since cutoff.
func (m *Manager) IdleSince(cutoff time.Time, filter func(*Session) bool) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var idle []*Session
	for _, s := range m.sessions {
		if filter != nil && !filter(s) {
			continue
		}
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	return idle
}

// Deliver encodes msg and queues it on the target session. Unknown sessions
// and full outboxes drop the message.
func (m *Manager) Deliver(connID string, msg network.Message) {
	s, exists := m.Get(connID)
	if !exists {
		logger.Log.Debugf("Dropping %s for unknown session %s", msg.MessageType(), connID)
		return
	}

	data, err := network.Encode(msg)
	if err != nil {
		logger.Log.Errorf("Failed to encode %s for session %s: %v", msg.MessageType(), connID, err)
		return
	}

	if !s.Enqueue(data) {
		logger.Log.Warnf("Dropping %s for session %s: outbox full or closed", msg.MessageType(), connID)
		if m.drops != nil {
			m.drops.IncDeliveriesDropped()
		}
	}
}
