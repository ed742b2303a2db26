package match

import (
	"time"

	"github.com/wfunc/puzzleduel/logger"
	"github.com/wfunc/puzzleduel/network"
	"github.com/wfunc/puzzleduel/room"
)

// ExpiryReport counts what one sweep removed.
type ExpiryReport struct {
	QueueExpired bool
	RoomsExpired int
}

// ExpireIdle removes the waiting connection and any open rooms that have
// been idle for longer than the configured TTLs.
func (s *Service) ExpireIdle(now time.Time) ExpiryReport {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var report ExpiryReport

	if s.queueTTL > 0 && !s.queue.empty() && now.Sub(s.queue.since) >= s.queueTTL {
		connID := s.queue.connID
		s.dequeue()
		s.deliverer.Deliver(connID, network.NewMatchTimeout(network.ReasonQueueExpired))
		report.QueueExpired = true
		logger.Log.Infof("Connection %s expired from the matchmaking queue", connID)
	}

	if s.roomTTL <= 0 {
		return report
	}

	var stale []*room.Room
	s.store.Each(func(r *room.Room) bool {
		if now.Sub(r.LastActive) >= s.roomTTL {
			stale = append(stale, r)
		}
		return true
	})

	for _, r := range stale {
		if err := s.teardown(r, room.ReasonExpired, ""); err != nil {
			logger.Log.Warnf("Failed to expire room %s: %v", r.ID, err)
			continue
		}
		for _, slot := range []room.Slot{room.SlotOne, room.SlotTwo} {
			s.deliverer.Deliver(r.Player(slot), &network.GameOver{
				Type:          network.MsgTypeGameOver,
				Winner:        network.WinnerDraw,
				MyScore:       r.State(slot).Score,
				OpponentScore: r.State(slot.Opponent()).Score,
				Reason:        network.ReasonRoomExpired,
			})
		}
		report.RoomsExpired++
		logger.Log.Infof("Room %s expired after %v idle", r.ID, now.Sub(r.LastActive))
	}
	return report
}
