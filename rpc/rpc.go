package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/puzzleduel/logger"
	"github.com/wfunc/puzzleduel/match"
	"github.com/wfunc/puzzleduel/models"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
	queryTimeout       = 5 * time.Second
)

// Server serves registered receivers over net/rpc.
type Server struct {
	listener net.Listener
	address  string
	server   *rpc.Server
}

// NewServer listens on addr and registers the given receivers.
func NewServer(addr string, receivers ...interface{}) (*Server, error) {
	server := rpc.NewServer()
	for _, rcvr := range receivers {
		if err := server.Register(rcvr); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		server:   server,
	}, nil
}

func (s *Server) Addr() string {
	return s.address
}

// Start accepts connections until Stop is called.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.server.ServeConn(conn)
	}
}

func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// StatsSource is the live view of matchmaking.
type StatsSource interface {
	Stats() match.Stats
}

// HistorySource lists finished matches.
type HistorySource interface {
	RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error)
}

// MatchService exposes matchmaking state to operators.
type MatchService struct {
	stats   StatsSource
	history HistorySource
	online  func() int
}

func NewMatchService(stats StatsSource, history HistorySource, online func() int) *MatchService {
	return &MatchService{stats: stats, history: history, online: online}
}

type StatsArgs struct {
	WithOnline bool
}

type StatsReply struct {
	Waiting     int
	ActiveRooms int
	Online      int
}

func (ms *MatchService) Stats(args *StatsArgs, reply *StatsReply) error {
	stats := ms.stats.Stats()
	reply.Waiting = stats.Waiting
	reply.ActiveRooms = stats.ActiveRooms
	if args.WithOnline && ms.online != nil {
		reply.Online = ms.online()
	}
	return nil
}

type RecentMatchesArgs struct {
	Limit int
}

type RecentMatchesReply struct {
	Matches []models.MatchRecord
}

func (ms *MatchService) RecentMatches(args *RecentMatchesArgs, reply *RecentMatchesReply) error {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	matches, err := ms.history.RecentMatches(ctx, limit)
	if err != nil {
		return err
	}
	reply.Matches = matches
	return nil
}
