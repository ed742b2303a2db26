// models/models.go
package models

import (
	"time"

	"github.com/wfunc/puzzleduel/room"
)

// MatchRecord is the history entry written when a room closes.
type MatchRecord struct {
	RoomID         string    `json:"room_id"`
	PlayerOne      string    `json:"player_one"`
	PlayerTwo      string    `json:"player_two"`
	Seed           int64     `json:"seed"`
	PlayerOneScore int       `json:"player_one_score"`
	PlayerTwoScore int       `json:"player_two_score"`
	PlayerOneTime  *float64  `json:"player_one_time"`
	PlayerTwoTime  *float64  `json:"player_two_time"`
	Winner         string    `json:"winner"` // connection id, empty when nobody won
	Reason         string    `json:"reason"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// NewMatchRecord summarizes a closed room. The winner of a completed room is
// the first player to report completion; after a disconnect it is the player
// left behind. Expired rooms have no winner.
func NewMatchRecord(r room.Room, endedAt time.Time) *MatchRecord {
	one, two := r.States[room.SlotOne], r.States[room.SlotTwo]
	rec := &MatchRecord{
		RoomID:         r.ID,
		PlayerOne:      r.Player(room.SlotOne),
		PlayerTwo:      r.Player(room.SlotTwo),
		Seed:           r.Seed,
		PlayerOneScore: one.Score,
		PlayerTwoScore: two.Score,
		PlayerOneTime:  one.CompletionTime,
		PlayerTwoTime:  two.CompletionTime,
		Reason:         string(r.Reason),
		StartedAt:      r.CreatedAt,
		EndedAt:        endedAt,
	}

	switch r.Reason {
	case room.ReasonCompleted:
		rec.Winner = r.ClosedBy
	case room.ReasonDisconnected:
		if slot, ok := r.SlotOf(r.ClosedBy); ok {
			rec.Winner = r.Player(slot.Opponent())
		}
	}
	return rec
}
