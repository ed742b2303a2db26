package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/puzzleduel/config"
	"github.com/wfunc/puzzleduel/network"
	"github.com/wfunc/puzzleduel/persistence"
	"github.com/wfunc/puzzleduel/session"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*GameServer, *httptest.Server) {
	t.Helper()

	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}

	gs := NewGameServer(cfg, persistence.NewMemory())
	ts := httptest.NewServer(gs.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gs.Shutdown(ctx)
	})
	return gs, ts
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func dialWS(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &wsClient{t: t, conn: conn}
	hello := c.read()
	require.Equal(t, "connected", hello["type"])
	c.id = hello["connectionId"].(string)
	return c
}

func (c *wsClient) send(v map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

func (c *wsClient) read() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg map[string]any
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return msg
}

func TestGameServer_WebSocketMatch(t *testing.T) {
	gs, ts := newTestServer(t, nil)

	a := dialWS(t, ts)
	b := dialWS(t, ts)

	a.send(map[string]any{"type": "startMatch"})
	require.Eventually(t, func() bool { return gs.matches.IsWaiting(a.id) }, 2*time.Second, 5*time.Millisecond)
	b.send(map[string]any{"type": "startMatch"})

	matchedA := a.read()
	matchedB := b.read()
	assert.Equal(t, "matched", matchedA["type"])
	assert.Equal(t, true, matchedA["isFirstPlayer"])
	assert.Equal(t, "Player "+b.id, matchedA["opponentName"])
	assert.Equal(t, "matched", matchedB["type"])
	assert.Equal(t, false, matchedB["isFirstPlayer"])
	assert.Equal(t, matchedA["seed"], matchedB["seed"])

	a.send(map[string]any{"type": "gameUpdate", "score": 10, "remaining": 50})
	assert.Equal(t, map[string]any{"type": "opponentUpdate", "score": 10.0, "remaining": 50.0}, b.read())

	b.send(map[string]any{"type": "gameComplete", "score": 64, "time": 120})

	assert.Equal(t, map[string]any{
		"type":          "gameOver",
		"winner":        "you",
		"myScore":       64.0,
		"myTime":        120.0,
		"opponentScore": 10.0,
		"opponentTime":  nil,
	}, b.read())
	assert.Equal(t, map[string]any{
		"type":          "gameOver",
		"winner":        "opponent",
		"myScore":       10.0,
		"myTime":        nil,
		"opponentScore": 64.0,
		"opponentTime":  120.0,
	}, a.read())

	assert.Zero(t, gs.matches.Stats().ActiveRooms)
	metrics := gs.Monitor().Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RoomsClosed.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MessagesReceived.WithLabelValues("startMatch")))
}

func TestGameServer_WebSocketDisconnect(t *testing.T) {
	gs, ts := newTestServer(t, nil)

	a := dialWS(t, ts)
	b := dialWS(t, ts)

	a.send(map[string]any{"type": "startMatch"})
	require.Eventually(t, func() bool { return gs.matches.IsWaiting(a.id) }, 2*time.Second, 5*time.Millisecond)
	b.send(map[string]any{"type": "startMatch"})
	a.read()
	b.read()

	require.NoError(t, a.conn.Close())

	over := b.read()
	assert.Equal(t, "gameOver", over["type"])
	assert.Equal(t, "you", over["winner"])
	assert.Equal(t, "opponent_disconnected", over["reason"])

	require.Eventually(t, func() bool {
		_, ok := gs.sessionManager.Get(a.id)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, gs.matches.Stats().ActiveRooms)
}

func TestGameServer_WebSocketBadFrameKeepsConnection(t *testing.T) {
	gs, ts := newTestServer(t, nil)
	a := dialWS(t, ts)

	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	a.send(map[string]any{"type": "startMatch"})

	require.Eventually(t, func() bool { return gs.matches.IsWaiting(a.id) }, 2*time.Second, 5*time.Millisecond)
}

func postBridge(t *testing.T, ts *httptest.Server, body map[string]any) (int, map[string]any) {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/websocket", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func connectPoll(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	status, out := postBridge(t, ts, map[string]any{"action": "connect"})
	require.Equal(t, http.StatusOK, status)
	id, _ := out["connectionId"].(string)
	require.NotEmpty(t, id)
	return id
}

// pollUntil polls until a message of the given type arrives.
func pollUntil(t *testing.T, ts *httptest.Server, connID, msgType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		status, out := postBridge(t, ts, map[string]any{"action": "poll", "connectionId": connID, "waitMs": 200})
		require.Equal(t, http.StatusOK, status)
		for _, raw := range out["messages"].([]any) {
			msg := raw.(map[string]any)
			if msg["type"] == msgType {
				return msg
			}
		}
	}
	t.Fatalf("no %s message for %s", msgType, connID)
	return nil
}

func TestGameServer_PollBridgeMatch(t *testing.T) {
	gs, ts := newTestServer(t, nil)

	a := connectPoll(t, ts)
	b := connectPoll(t, ts)

	status, _ := postBridge(t, ts, map[string]any{"action": "startMatch", "connectionId": a})
	require.Equal(t, http.StatusOK, status)
	require.True(t, gs.matches.IsWaiting(a))
	postBridge(t, ts, map[string]any{"action": "startMatch", "connectionId": b})

	matchedA := pollUntil(t, ts, a, "matched")
	matchedB := pollUntil(t, ts, b, "matched")
	assert.Equal(t, true, matchedA["isFirstPlayer"])
	assert.Equal(t, false, matchedB["isFirstPlayer"])
	assert.Equal(t, matchedA["seed"], matchedB["seed"])

	postBridge(t, ts, map[string]any{"action": "gameUpdate", "connectionId": a, "score": 10, "remaining": 50})
	update := pollUntil(t, ts, b, "opponentUpdate")
	assert.Equal(t, 10.0, update["score"])
	assert.Equal(t, 50.0, update["remaining"])

	postBridge(t, ts, map[string]any{"action": "disconnect", "connectionId": b})
	over := pollUntil(t, ts, a, "gameOver")
	assert.Equal(t, "you", over["winner"])
	assert.Equal(t, "opponent_disconnected", over["reason"])

	status, _ = postBridge(t, ts, map[string]any{"action": "poll", "connectionId": b})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGameServer_PollBridgeErrors(t *testing.T) {
	_, ts := newTestServer(t, nil)

	status, _ := postBridge(t, ts, map[string]any{"action": "startMatch", "connectionId": "nope"})
	assert.Equal(t, http.StatusNotFound, status)

	id := connectPoll(t, ts)
	status, out := postBridge(t, ts, map[string]any{"action": "fly", "connectionId": id})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown action", out["error"])

	resp, err := http.Post(ts.URL+"/api/websocket", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Misuse is absorbed silently.
	status, out = postBridge(t, ts, map[string]any{"action": "gameComplete", "connectionId": id, "score": 1, "time": 2})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["ok"])
}

func TestGameServer_SweepReapsIdlePollSessions(t *testing.T) {
	gs, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.PollTimeout = time.Minute
	})

	idle := connectPoll(t, ts)
	postBridge(t, ts, map[string]any{"action": "startMatch", "connectionId": idle})
	ws := dialWS(t, ts)

	gs.sweep(time.Now().Add(2 * time.Minute))

	_, ok := gs.sessionManager.Get(idle)
	assert.False(t, ok)
	assert.False(t, gs.matches.IsWaiting(idle))
	_, ok = gs.sessionManager.Get(ws.id)
	assert.True(t, ok)
}

func TestGameServer_SweepExpiresRooms(t *testing.T) {
	gs, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Match.RoomTTL = time.Minute
		cfg.Server.PollTimeout = 0
	})

	a := connectPoll(t, ts)
	b := connectPoll(t, ts)
	postBridge(t, ts, map[string]any{"action": "startMatch", "connectionId": a})
	postBridge(t, ts, map[string]any{"action": "startMatch", "connectionId": b})
	require.Equal(t, 1, gs.matches.Stats().ActiveRooms)

	gs.sweep(time.Now().Add(2 * time.Minute))

	assert.Zero(t, gs.matches.Stats().ActiveRooms)
	over := pollUntil(t, ts, a, "gameOver")
	assert.Equal(t, "draw", over["winner"])
	assert.Equal(t, "room_expired", over["reason"])
}

func TestGameServer_Healthz(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGameServer_ShutdownClosesSessions(t *testing.T) {
	gs, ts := newTestServer(t, nil)
	connectPoll(t, ts)
	connectPoll(t, ts)
	require.Equal(t, 2, gs.sessionManager.Count())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, gs.Shutdown(ctx))

	assert.Zero(t, gs.sessionManager.Count())
	assert.Equal(t, 0.0, testutil.ToFloat64(gs.Monitor().Metrics().OnlinePlayers))
}

func TestGameServer_PollWait(t *testing.T) {
	gs, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.PollTimeout = 20 * time.Second
	})

	assert.Equal(t, time.Duration(0), gs.pollWait(-5))
	assert.Equal(t, 500*time.Millisecond, gs.pollWait(500))
	assert.Equal(t, 10*time.Second, gs.pollWait(60000))
}

func TestGameServer_ActionAfterTeardownIsRefused(t *testing.T) {
	gs, ts := newTestServer(t, nil)

	gone := connectPoll(t, ts)
	sess, _, ok := gs.pollSession(gone)
	require.True(t, ok)

	// A request that resolved the session just before it was torn down.
	gs.closeSession(sess)
	err := gs.dispatch(sess, &network.Action{Type: network.ActionStartMatch})
	assert.ErrorIs(t, err, session.ErrSessionEnded)
	assert.False(t, gs.matches.IsWaiting(gone))

	live := connectPoll(t, ts)
	status, _ := postBridge(t, ts, map[string]any{"action": "startMatch", "connectionId": live})
	require.Equal(t, http.StatusOK, status)

	assert.True(t, gs.matches.IsWaiting(live))
	_, paired := gs.matches.RoomOf(live)
	assert.False(t, paired)
}

func TestGameServer_ConcurrentTeardownLeavesNoGhosts(t *testing.T) {
	gs, _ := newTestServer(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		sess := gs.openSession(network.NewPollConnection("test"))
		wg.Add(2)
		go func() {
			defer wg.Done()
			gs.dispatch(sess, &network.Action{Type: network.ActionStartMatch})
		}()
		go func() {
			defer wg.Done()
			gs.closeSession(sess)
		}()
	}
	wg.Wait()

	stats := gs.matches.Stats()
	assert.Zero(t, stats.Waiting)
	assert.Zero(t, stats.ActiveRooms)
	assert.Zero(t, gs.sessionManager.Count())
}
