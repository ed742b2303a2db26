// room/room.go
package room

import (
	"errors"
	"time"
)

var (
	ErrRoomAlreadyClosed = errors.New("room already closed")
	ErrSamePlayer        = errors.New("room needs two distinct players")
	ErrPlayerInRoom      = errors.New("player already in a room")
)

// RoomStatus is the room lifecycle. Closed is terminal.
type RoomStatus int

const (
	StatusOpen RoomStatus = iota
	StatusClosed
)

func (s RoomStatus) String() string {
	if s == StatusClosed {
		return "closed"
	}
	return "open"
}

// CloseReason records why a room reached StatusClosed.
type CloseReason string

const (
	ReasonNone         CloseReason = ""
	ReasonCompleted    CloseReason = "completed"
	ReasonDisconnected CloseReason = "disconnected"
	ReasonExpired      CloseReason = "expired"
)

// Slot indexes one of the two players of a room.
type Slot int

const (
	SlotOne Slot = iota
	SlotTwo
)

func (s Slot) Opponent() Slot {
	return 1 - s
}

// PlayerState is one player's progress as last reported by that player.
type PlayerState struct {
	Score          int
	Remaining      int
	Completed      bool
	CompletionTime *float64
}

// Room is a paired session. It has no lock of its own; the owner of the
// Store serializes every access.
type Room struct {
	ID         string
	Players    [2]string
	Seed       int64
	States     [2]PlayerState
	Status     RoomStatus
	Reason     CloseReason
	ClosedBy   string // player whose action closed the room, if any
	CreatedAt  time.Time
	LastActive time.Time
}

// NewRoom pairs first and second. The seed is fixed for the room's lifetime.
func NewRoom(id, first, second string, seed int64, initialRemaining int, now time.Time) (*Room, error) {
	if first == second {
		return nil, ErrSamePlayer
	}
	r := &Room{
		ID:         id,
		Players:    [2]string{first, second},
		Seed:       seed,
		Status:     StatusOpen,
		CreatedAt:  now,
		LastActive: now,
	}
	for i := range r.States {
		r.States[i] = PlayerState{Remaining: initialRemaining}
	}
	return r, nil
}

// SlotOf reports which slot connID occupies.
func (r *Room) SlotOf(connID string) (Slot, bool) {
	switch connID {
	case r.Players[SlotOne]:
		return SlotOne, true
	case r.Players[SlotTwo]:
		return SlotTwo, true
	}
	return 0, false
}

func (r *Room) Player(slot Slot) string {
	return r.Players[slot]
}

func (r *Room) State(slot Slot) *PlayerState {
	return &r.States[slot]
}

// Update overwrites a slot's progress with the reported values.
func (r *Room) Update(slot Slot, score, remaining int, now time.Time) error {
	if r.Status == StatusClosed {
		return ErrRoomAlreadyClosed
	}
	st := &r.States[slot]
	st.Score = score
	st.Remaining = remaining
	r.LastActive = now
	return nil
}

// Complete marks a slot finished. The completion time is set only once.
func (r *Room) Complete(slot Slot, score int, elapsed float64, now time.Time) error {
	if r.Status == StatusClosed {
		return ErrRoomAlreadyClosed
	}
	st := &r.States[slot]
	st.Score = score
	if !st.Completed {
		st.Completed = true
		t := elapsed
		st.CompletionTime = &t
	}
	r.LastActive = now
	return nil
}

// Close moves the room to StatusClosed. by is the player whose action
// closed it, or empty.
func (r *Room) Close(reason CloseReason, by string) error {
	if r.Status == StatusClosed {
		return ErrRoomAlreadyClosed
	}
	r.Status = StatusClosed
	r.Reason = reason
	r.ClosedBy = by
	return nil
}

func (r *Room) IsOpen() bool {
	return r.Status == StatusOpen
}
