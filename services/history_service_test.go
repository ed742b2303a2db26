package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/puzzleduel/match"
	"github.com/wfunc/puzzleduel/models"
	"github.com/wfunc/puzzleduel/network"
	"github.com/wfunc/puzzleduel/persistence"
	"github.com/wfunc/puzzleduel/room"
)

type discardDeliverer struct{}

func (discardDeliverer) Deliver(string, network.Message) {}

// blockingDatabase holds every save until release is closed.
type blockingDatabase struct {
	*persistence.Memory
	release chan struct{}
}

func (b *blockingDatabase) SaveMatchRecord(ctx context.Context, rec *models.MatchRecord) error {
	<-b.release
	return b.Memory.SaveMatchRecord(ctx, rec)
}

type failingDatabase struct {
	persistence.Memory
	mutex sync.Mutex
	calls int
}

func (f *failingDatabase) SaveMatchRecord(context.Context, *models.MatchRecord) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls++
	return errors.New("connection refused")
}

func TestHistoryService_RecordsClosedRooms(t *testing.T) {
	db := persistence.NewMemory()
	history := NewHistoryService(db, 16)

	svc := match.NewService(discardDeliverer{}, match.WithObserver(history))
	require.NoError(t, svc.StartMatch("A"))
	require.NoError(t, svc.StartMatch("B"))
	require.NoError(t, svc.GameUpdate("A", 20, 10))
	require.NoError(t, svc.GameComplete("B", 64, 95))

	require.NoError(t, svc.StartMatch("C"))
	require.NoError(t, svc.StartMatch("D"))
	require.NoError(t, svc.Disconnect("C"))

	history.Stop()

	recent, err := history.RecentMatches(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	byWinner := map[string]models.MatchRecord{}
	for _, rec := range recent {
		byWinner[rec.Winner] = rec
	}

	completed := byWinner["B"]
	assert.Equal(t, string(room.ReasonCompleted), completed.Reason)
	assert.Equal(t, 20, completed.PlayerOneScore)
	assert.Equal(t, 64, completed.PlayerTwoScore)
	require.NotNil(t, completed.PlayerTwoTime)
	assert.Equal(t, 95.0, *completed.PlayerTwoTime)

	disconnected := byWinner["D"]
	assert.Equal(t, string(room.ReasonDisconnected), disconnected.Reason)
	assert.Equal(t, "C", disconnected.PlayerOne)
}

func TestHistoryService_DropsWhenBufferFull(t *testing.T) {
	db := &blockingDatabase{Memory: persistence.NewMemory(), release: make(chan struct{})}
	history := NewHistoryService(db, 1)

	closedRoom := func(id string) room.Room {
		return room.Room{ID: id, Players: [2]string{"A", "B"}, Status: room.StatusClosed, Reason: room.ReasonExpired}
	}

	// The worker takes the first record and blocks; the second fills the
	// buffer and the third is dropped.
	history.RoomClosed(closedRoom("r1"))
	require.Eventually(t, func() bool { return len(history.records) == 0 }, time.Second, time.Millisecond)
	history.RoomClosed(closedRoom("r2"))
	history.RoomClosed(closedRoom("r3"))

	close(db.release)
	history.Stop()

	recent, err := db.RecentMatches(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestHistoryService_SaveErrorsDoNotStopWorker(t *testing.T) {
	db := &failingDatabase{}
	history := NewHistoryService(db, 4)

	history.RoomClosed(room.Room{ID: "r1"})
	history.RoomClosed(room.Room{ID: "r2"})
	history.Stop()

	db.mutex.Lock()
	defer db.mutex.Unlock()
	assert.Equal(t, 2, db.calls)
}

func TestHistoryService_RoomClosedAfterStop(t *testing.T) {
	history := NewHistoryService(persistence.NewMemory(), 4)
	history.Stop()
	history.Stop()

	history.RoomClosed(room.Room{ID: "late"})

	recent, err := history.RecentMatches(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
