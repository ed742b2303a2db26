package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/wfunc/puzzleduel/logger"
	"github.com/wfunc/puzzleduel/network"
	"github.com/wfunc/puzzleduel/session"
)

const (
	pollActionConnect    = "connect"
	pollActionPoll       = "poll"
	pollActionDisconnect = "disconnect"

	maxPollBody = 64 << 10
	maxPollWait = 30 * time.Second
)

// pollRequest is one call to the request/poll bridge for clients that cannot
// keep a socket open.
type pollRequest struct {
	Action       string  `json:"action"`
	ConnectionID string  `json:"connectionId"`
	Score        int     `json:"score"`
	Remaining    int     `json:"remaining"`
	Time         float64 `json:"time"`
	WaitMs       int     `json:"waitMs"`
}

type connectResponse struct {
	ConnectionID string `json:"connectionId"`
}

type pollResponse struct {
	Messages []json.RawMessage `json:"messages"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *GameServer) handlePollBridge(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPollBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if req.Action == pollActionConnect {
		sess := s.openSession(network.NewPollConnection(r.RemoteAddr))
		writeJSON(w, http.StatusOK, connectResponse{ConnectionID: sess.ID})
		return
	}

	sess, conn, ok := s.pollSession(req.ConnectionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown connection"})
		return
	}

	switch req.Action {
	case pollActionPoll:
		sess.Touch()
		frames := conn.Drain(r.Context(), s.pollWait(req.WaitMs))
		sess.Touch()

		resp := pollResponse{Messages: make([]json.RawMessage, 0, len(frames))}
		for _, frame := range frames {
			resp.Messages = append(resp.Messages, json.RawMessage(frame))
		}
		writeJSON(w, http.StatusOK, resp)

	case pollActionDisconnect:
		s.closeSession(sess)
		writeJSON(w, http.StatusOK, okResponse{OK: true})

	default:
		err := s.dispatch(sess, &network.Action{
			Type:      req.Action,
			Score:     req.Score,
			Remaining: req.Remaining,
			Time:      req.Time,
		})
		switch {
		case errors.Is(err, ErrUnknownAction):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown action"})
			return
		case errors.Is(err, session.ErrSessionEnded):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown connection"})
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

func (s *GameServer) pollSession(connID string) (*session.Session, *network.PollConnection, bool) {
	sess, ok := s.sessionManager.Get(connID)
	if !ok {
		return nil, nil, false
	}
	conn, ok := sess.Conn.(*network.PollConnection)
	if !ok {
		return nil, nil, false
	}
	return sess, conn, true
}

// pollWait bounds a long poll so an attentive client is never reaped.
func (s *GameServer) pollWait(waitMs int) time.Duration {
	wait := time.Duration(waitMs) * time.Millisecond
	if wait > maxPollWait {
		wait = maxPollWait
	}
	if timeout := s.cfg.Server.PollTimeout; timeout > 0 && wait > timeout/2 {
		wait = timeout / 2
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Debugf("Failed to write response: %v", err)
	}
}
