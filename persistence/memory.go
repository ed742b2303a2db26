package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/wfunc/puzzleduel/models"
)

// Memory keeps match history for the lifetime of the process.
type Memory struct {
	mutex   sync.RWMutex
	records []models.MatchRecord
	byRoom  map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{byRoom: make(map[string]struct{})}
}

func (m *Memory) SaveMatchRecord(_ context.Context, rec *models.MatchRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.byRoom[rec.RoomID]; exists {
		return ErrDuplicateRecord
	}
	m.byRoom[rec.RoomID] = struct{}{}
	m.records = append(m.records, *rec)
	return nil
}

// RecentMatches returns up to limit records, most recently ended first.
func (m *Memory) RecentMatches(_ context.Context, limit int) ([]models.MatchRecord, error) {
	m.mutex.RLock()
	out := make([]models.MatchRecord, len(m.records))
	copy(out, m.records)
	m.mutex.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
