package match

import "github.com/wfunc/puzzleduel/room"

// Observer is told about queue and room transitions. Calls happen while the
// service lock is held, so implementations must return quickly. Rooms are
// passed by value and must not be retained for mutation.
type Observer interface {
	Queued(connID string)
	Dequeued(connID string)
	RoomOpened(r room.Room)
	RoomClosed(r room.Room)
}

// NopObserver can be embedded to implement only part of Observer.
type NopObserver struct{}

func (NopObserver) Queued(string)        {}
func (NopObserver) Dequeued(string)      {}
func (NopObserver) RoomOpened(room.Room) {}
func (NopObserver) RoomClosed(room.Room) {}
