package match

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/puzzleduel/logger"
	"github.com/wfunc/puzzleduel/network"
	"github.com/wfunc/puzzleduel/room"
)

// Deliverer sends a message to a connection. It must not block; delivery is
// best effort and failures never reach the caller.
type Deliverer interface {
	Deliver(connID string, msg network.Message)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func WithInitialRemaining(n int) Option {
	return func(s *Service) { s.initialRemaining = n }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

// WithTTL enables idle expiry. A zero duration disables expiry for that
// kind of entry.
func WithTTL(queueTTL, roomTTL time.Duration) Option {
	return func(s *Service) {
		s.queueTTL = queueTTL
		s.roomTTL = roomTTL
	}
}

// Service owns the matchmaking slot and the room store. Every operation runs
// under one lock, so pairing and teardown are atomic with respect to each
// other and messages for a connection are delivered in the order produced.
type Service struct {
	mutex     sync.Mutex
	queue     queue
	store     *room.Store
	deliverer Deliverer
	observers []Observer

	now              func() time.Time
	newID            func() string
	initialRemaining int
	queueTTL         time.Duration
	roomTTL          time.Duration
}

func NewService(deliverer Deliverer, opts ...Option) *Service {
	s := &Service{
		store:            room.NewStore(),
		deliverer:        deliverer,
		now:              time.Now,
		newID:            func() string { return uuid.New().String() },
		initialRemaining: 64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartMatch queues connID, or pairs it with the connection already waiting.
func (s *Service) StartMatch(connID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.queue.holds(connID) {
		return ErrAlreadyWaiting
	}
	if _, inRoom := s.store.ForPlayer(connID); inRoom {
		return ErrAlreadyInRoom
	}

	now := s.now()
	if s.queue.empty() {
		s.queue.put(connID, now)
		for _, o := range s.observers {
			o.Queued(connID)
		}
		logger.Log.Debugf("Connection %s is waiting for an opponent", connID)
		return nil
	}

	waiting := s.queue.connID
	r, err := room.NewRoom(s.newID(), waiting, connID, now.UnixMilli(), s.initialRemaining, now)
	if err != nil {
		return err
	}
	if err := s.store.Add(r); err != nil {
		return err
	}
	s.queue.clear()

	for _, o := range s.observers {
		o.Dequeued(waiting)
		o.RoomOpened(*r)
	}

	s.deliverer.Deliver(waiting, network.NewMatched(opponentName(connID), r.Seed, true))
	s.deliverer.Deliver(connID, network.NewMatched(opponentName(waiting), r.Seed, false))

	logger.Log.Infof("Room %s opened for %s and %s, seed %d", r.ID, waiting, connID, r.Seed)
	return nil
}

// CancelMatch takes connID out of the queue. It never affects an open room.
func (s *Service) CancelMatch(connID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.queue.holds(connID) {
		return ErrNotWaiting
	}
	s.dequeue()
	logger.Log.Debugf("Connection %s cancelled matchmaking", connID)
	return nil
}

// GameUpdate stores the sender's progress and relays it to the opponent.
func (s *Service) GameUpdate(connID string, score, remaining int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, slot, err := s.lookup(connID)
	if err != nil {
		return err
	}
	if err := r.Update(slot, score, remaining, s.now()); err != nil {
		return err
	}

	s.deliverer.Deliver(r.Player(slot.Opponent()), network.NewOpponentUpdate(score, remaining))
	return nil
}

// GameComplete ends the room in favour of the first player to report
// completion, whatever the opponent's score.
func (s *Service) GameComplete(connID string, score int, elapsed float64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, slot, err := s.lookup(connID)
	if err != nil {
		return err
	}
	if err := r.Complete(slot, score, elapsed, s.now()); err != nil {
		return err
	}

	me := r.State(slot)
	opponent := r.State(slot.Opponent())

	reporterMsg := &network.GameOver{
		Type:          network.MsgTypeGameOver,
		Winner:        network.WinnerYou,
		MyScore:       me.Score,
		MyTime:        me.CompletionTime,
		OpponentScore: opponent.Score,
	}
	opponentMsg := &network.GameOver{
		Type:          network.MsgTypeGameOver,
		Winner:        network.WinnerOpponent,
		MyScore:       opponent.Score,
		OpponentScore: me.Score,
		OpponentTime:  me.CompletionTime,
	}

	if err := s.teardown(r, room.ReasonCompleted, connID); err != nil {
		return err
	}
	s.deliverer.Deliver(connID, reporterMsg)
	s.deliverer.Deliver(r.Player(slot.Opponent()), opponentMsg)

	logger.Log.Infof("Room %s completed by %s with score %d", r.ID, connID, score)
	return nil
}

// Disconnect drops connID from the queue or ends its room. Only the opponent
// is notified.
func (s *Service) Disconnect(connID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.queue.holds(connID) {
		s.dequeue()
		logger.Log.Debugf("Waiting connection %s disconnected", connID)
		return nil
	}

	r, slot, err := s.lookup(connID)
	if err != nil {
		return err
	}

	opponent := slot.Opponent()
	msg := &network.GameOver{
		Type:          network.MsgTypeGameOver,
		Winner:        network.WinnerYou,
		MyScore:       r.State(opponent).Score,
		OpponentScore: r.State(slot).Score,
		Reason:        network.ReasonOpponentDisconnected,
	}

	if err := s.teardown(r, room.ReasonDisconnected, connID); err != nil {
		return err
	}
	s.deliverer.Deliver(r.Player(opponent), msg)

	logger.Log.Infof("Room %s closed, %s disconnected", r.ID, connID)
	return nil
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Waiting     int
	ActiveRooms int
}

func (s *Service) Stats() Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats := Stats{ActiveRooms: s.store.Len()}
	if !s.queue.empty() {
		stats.Waiting = 1
	}
	return stats
}

// IsWaiting reports whether connID holds the matchmaking slot.
func (s *Service) IsWaiting(connID string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.queue.holds(connID)
}

// RoomOf returns a copy of the open room connID plays in.
func (s *Service) RoomOf(connID string) (room.Room, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, ok := s.store.ForPlayer(connID)
	if !ok {
		return room.Room{}, false
	}
	return *r, true
}

func (s *Service) lookup(connID string) (*room.Room, room.Slot, error) {
	r, ok := s.store.ForPlayer(connID)
	if !ok || !r.IsOpen() {
		return nil, 0, ErrRoomNotFound
	}
	slot, ok := r.SlotOf(connID)
	if !ok {
		return nil, 0, ErrRoomNotFound
	}
	return r, slot, nil
}

func (s *Service) dequeue() {
	connID := s.queue.clear()
	for _, o := range s.observers {
		o.Dequeued(connID)
	}
}

// teardown closes and removes r. Callers hold the lock.
func (s *Service) teardown(r *room.Room, reason room.CloseReason, by string) error {
	if err := r.Close(reason, by); err != nil {
		return err
	}
	if _, removed := s.store.Remove(r.ID); !removed {
		return fmt.Errorf("remove room %s: %w", r.ID, ErrRoomNotFound)
	}
	for _, o := range s.observers {
		o.RoomClosed(*r)
	}
	return nil
}

func opponentName(connID string) string {
	return "Player " + connID
}
