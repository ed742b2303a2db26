package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/puzzleduel/config"
	"github.com/wfunc/puzzleduel/models"
)

func record(id string, endedAt time.Time) *models.MatchRecord {
	return &models.MatchRecord{
		RoomID:    id,
		PlayerOne: "A",
		PlayerTwo: "B",
		Reason:    "completed",
		Winner:    "A",
		StartedAt: endedAt.Add(-time.Minute),
		EndedAt:   endedAt,
	}
}

func TestMemory_SaveAndRecent(t *testing.T) {
	db := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.SaveMatchRecord(ctx, record(fmt.Sprintf("room-%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	recent, err := db.RecentMatches(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "room-4", recent[0].RoomID)
	assert.Equal(t, "room-3", recent[1].RoomID)
	assert.Equal(t, "room-2", recent[2].RoomID)

	all, err := db.RecentMatches(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMemory_DuplicateRoom(t *testing.T) {
	db := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.SaveMatchRecord(ctx, record("room-1", now)))
	assert.ErrorIs(t, db.SaveMatchRecord(ctx, record("room-1", now)), ErrDuplicateRecord)
}

func TestOpen(t *testing.T) {
	db, err := Open(config.DatabaseConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, db)
	require.NoError(t, db.Close())

	_, err = Open(config.DatabaseConfig{Driver: "mongo"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=duel sslmode=disable",
		dsn("db", 5432, "u", "p", "duel"))
}
