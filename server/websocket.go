package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/wfunc/puzzleduel/logger"
	"github.com/wfunc/puzzleduel/network"
)

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

// handleConnection reads client frames until the socket fails, then
// disconnects the session.
func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(s.cfg.Server.HeartbeatInterval)

	sess := s.openSession(wsConn)
	defer s.closeSession(sess)

	for {
		action, err := wsConn.ReadAction()
		if err != nil {
			if errors.Is(err, network.ErrBadFrame) {
				logger.Log.Infof("Session %s sent a bad frame: %v", sess.ID, err)
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log.Infof("Session %s read error: %v", sess.ID, err)
			}
			return
		}
		wsConn.Touch()
		s.dispatch(sess, action)
	}
}
