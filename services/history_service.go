// services/history_service.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/puzzleduel/logger"
	"github.com/wfunc/puzzleduel/match"
	"github.com/wfunc/puzzleduel/models"
	"github.com/wfunc/puzzleduel/persistence"
	"github.com/wfunc/puzzleduel/room"
)

const saveTimeout = 5 * time.Second

// HistoryService records every closed room. It observes the matchmaking
// service and writes records on a background worker, so RoomClosed never
// waits on the database.
type HistoryService struct {
	match.NopObserver

	db      persistence.Database
	now     func() time.Time
	records chan *models.MatchRecord
	mutex   sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

func NewHistoryService(db persistence.Database, buffer int) *HistoryService {
	if buffer <= 0 {
		buffer = 1
	}
	s := &HistoryService{
		db:      db,
		now:     time.Now,
		records: make(chan *models.MatchRecord, buffer),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// RoomClosed queues a record for r. Records are dropped when the buffer is
// full or the service is stopped.
func (s *HistoryService) RoomClosed(r room.Room) {
	rec := models.NewMatchRecord(r, s.now())

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		logger.Log.Warnf("History service stopped, dropping record for room %s", r.ID)
		return
	}
	select {
	case s.records <- rec:
	default:
		logger.Log.Warnf("History buffer full, dropping record for room %s", r.ID)
	}
}

// RecentMatches returns the latest records, most recent first.
func (s *HistoryService) RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	return s.db.RecentMatches(ctx, limit)
}

// Stop flushes queued records and waits for the worker to finish.
func (s *HistoryService) Stop() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	close(s.records)
	s.mutex.Unlock()

	s.wg.Wait()
}

func (s *HistoryService) worker() {
	defer s.wg.Done()

	for rec := range s.records {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err := s.db.SaveMatchRecord(ctx, rec)
		cancel()
		if err != nil {
			logger.Log.Errorf("Failed to save match record for room %s: %v", rec.RoomID, err)
			continue
		}
		logger.Log.Debugf("Saved match record for room %s", rec.RoomID)
	}
}
