package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/puzzleduel/config"
	"github.com/wfunc/puzzleduel/logger"
	"github.com/wfunc/puzzleduel/match"
	"github.com/wfunc/puzzleduel/monitor"
	"github.com/wfunc/puzzleduel/network"
	"github.com/wfunc/puzzleduel/persistence"
	gameserver_rpc "github.com/wfunc/puzzleduel/rpc"
	"github.com/wfunc/puzzleduel/services"
	"github.com/wfunc/puzzleduel/session"
	"github.com/wfunc/puzzleduel/timer"
)

const metricsNamespace = "puzzleduel"

var ErrUnknownAction = errors.New("unknown action")

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	matches        *match.Service
	monitor        *monitor.Monitor
	history        *services.HistoryService
	timers         *timer.TimerManager
	httpServer     *http.Server
	rpcServer      *gameserver_rpc.Server
	metricsServer  *http.Server
	mutex          sync.Mutex
	shutdownOnce   sync.Once
}

func NewGameServer(cfg *config.Config, db persistence.Database) *GameServer {
	s := &GameServer{
		cfg:     cfg,
		monitor: monitor.NewMonitor(metricsNamespace),
		history: services.NewHistoryService(db, cfg.Database.HistoryBuffer),
		timers:  timer.NewTimerManager(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // any origin
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	s.sessionManager = session.NewManager(cfg.Server.OutboxSize, s.monitor)
	s.matches = match.NewService(s.sessionManager,
		match.WithInitialRemaining(cfg.Match.InitialRemaining),
		match.WithTTL(cfg.Match.QueueTTL, cfg.Match.RoomTTL),
		match.WithObserver(s.monitor),
		match.WithObserver(s.history),
	)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler routes the client-facing endpoints.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("POST /api/websocket", s.handlePollBridge)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *GameServer) Monitor() *monitor.Monitor {
	return s.monitor
}

// Start serves until Shutdown is called.
func (s *GameServer) Start() error {
	rpcServer, err := gameserver_rpc.NewServer(s.cfg.Server.RPCAddress,
		gameserver_rpc.NewMatchService(s.matches, s.history, s.sessionManager.Count))
	if err != nil {
		return err
	}

	s.mutex.Lock()
	s.rpcServer = rpcServer
	if s.cfg.Server.MetricsAddress != "" {
		s.metricsServer = s.monitor.StartServer(s.cfg.Server.MetricsAddress)
		logger.Log.Infof("Metrics listening on %s", s.cfg.Server.MetricsAddress)
	}
	s.mutex.Unlock()

	go rpcServer.Start()
	s.startSweeper()

	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting clients, disconnects every session and flushes
// match history.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.timers.Stop()
		err = s.httpServer.Shutdown(ctx)

		for _, sess := range s.sessionManager.All() {
			s.closeSession(sess)
		}

		s.mutex.Lock()
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		if s.metricsServer != nil {
			s.metricsServer.Shutdown(ctx)
		}
		s.mutex.Unlock()

		s.history.Stop()
		logger.Log.Info("Game server stopped")
	})
	return err
}

func (s *GameServer) startSweeper() {
	interval := s.cfg.Match.SweepInterval
	if interval <= 0 {
		return
	}
	s.timers.AddTimer(interval, interval, func() {
		s.sweep(time.Now())
	})
}

// sweep expires idle queue entries and rooms and reaps poll clients that
// stopped polling.
func (s *GameServer) sweep(now time.Time) {
	if report := s.matches.ExpireIdle(now); report.QueueExpired || report.RoomsExpired > 0 {
		logger.Log.Infof("Expiry sweep: queue expired %v, rooms expired %d", report.QueueExpired, report.RoomsExpired)
	}

	timeout := s.cfg.Server.PollTimeout
	if timeout <= 0 {
		return
	}
	idle := s.sessionManager.IdleSince(now.Add(-timeout), func(sess *session.Session) bool {
		_, isPoll := sess.Conn.(*network.PollConnection)
		return isPoll
	})
	for _, sess := range idle {
		logger.Log.Infof("Reaping poll session %s after %v without a poll", sess.ID, timeout)
		s.closeSession(sess)
	}
}

func (s *GameServer) openSession(conn network.Connection) *session.Session {
	sess := s.sessionManager.Open(conn)
	s.monitor.IncOnlinePlayers()
	s.sessionManager.Deliver(sess.ID, network.NewConnected(sess.ID))
	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.ID)
	return sess
}

// closeSession tears the session down once, however many paths race to it.
func (s *GameServer) closeSession(sess *session.Session) {
	if _, ok := s.sessionManager.Take(sess.ID); !ok {
		return
	}
	sess.End()
	if err := s.matches.Disconnect(sess.ID); err != nil && !errors.Is(err, match.ErrRoomNotFound) {
		logger.Log.Warnf("Disconnect of session %s failed: %v", sess.ID, err)
	}
	sess.Close()
	s.monitor.DecOnlinePlayers()
	logger.Log.Infof("Connection closed from %s, session ID: %s", sess.Conn.RemoteAddr(), sess.ID)
}

// dispatch runs one client action against the matchmaking service. The
// action runs under the session's action lock, so it either completes before
// a concurrent teardown disconnects the session or is refused. Outcomes such
// as a missing room are logged and otherwise ignored.
func (s *GameServer) dispatch(sess *session.Session, action *network.Action) error {
	op, ok := s.operation(sess.ID, action)
	if !ok {
		s.monitor.IncMessagesReceived("unknown")
		logger.Log.Infof("Unknown action type %q from session %s", action.Type, sess.ID)
		return ErrUnknownAction
	}

	start := time.Now()
	sess.Touch()

	err := sess.Do(op)
	if errors.Is(err, session.ErrSessionEnded) {
		logger.Log.Debugf("Action %s from ended session %s dropped", action.Type, sess.ID)
		return err
	}

	s.monitor.IncMessagesReceived(action.Type)
	s.monitor.ObserveMessageLatency(time.Since(start))
	if err != nil {
		logger.Log.Debugf("Action %s from session %s ignored: %v", action.Type, sess.ID, err)
	}
	return err
}

func (s *GameServer) operation(connID string, action *network.Action) (func() error, bool) {
	switch action.Type {
	case network.ActionHeartbeat:
		return func() error { return nil }, true
	case network.ActionStartMatch:
		return func() error { return s.matches.StartMatch(connID) }, true
	case network.ActionCancelMatch:
		return func() error { return s.matches.CancelMatch(connID) }, true
	case network.ActionGameUpdate:
		return func() error { return s.matches.GameUpdate(connID, action.Score, action.Remaining) }, true
	case network.ActionGameComplete:
		return func() error { return s.matches.GameComplete(connID, action.Score, action.Time) }, true
	}
	return nil, false
}
