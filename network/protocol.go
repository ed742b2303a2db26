package network

import "encoding/json"

// Client action types.
const (
	ActionStartMatch   = "startMatch"
	ActionCancelMatch  = "cancelMatch"
	ActionGameUpdate   = "gameUpdate"
	ActionGameComplete = "gameComplete"
	ActionHeartbeat    = "heartbeat"
)

// Server message types.
const (
	MsgTypeConnected      = "connected"
	MsgTypeMatched        = "matched"
	MsgTypeOpponentUpdate = "opponentUpdate"
	MsgTypeGameOver       = "gameOver"
	MsgTypeMatchTimeout   = "matchTimeout"
)

// gameOver winners and reasons.
const (
	WinnerYou      = "you"
	WinnerOpponent = "opponent"
	WinnerDraw     = "draw"

	ReasonOpponentDisconnected = "opponent_disconnected"
	ReasonRoomExpired          = "room_expired"
	ReasonQueueExpired         = "queue_expired"
)

// Action is a client request as sent over the socket.
type Action struct {
	Type      string  `json:"type"`
	Score     int     `json:"score"`
	Remaining int     `json:"remaining"`
	Time      float64 `json:"time"`
}

// Message is anything the server delivers to a connection.
type Message interface {
	MessageType() string
}

type Connected struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

func NewConnected(connID string) *Connected {
	return &Connected{Type: MsgTypeConnected, ConnectionID: connID}
}

func (m *Connected) MessageType() string { return m.Type }

type Matched struct {
	Type          string `json:"type"`
	OpponentName  string `json:"opponentName"`
	Seed          int64  `json:"seed"`
	IsFirstPlayer bool   `json:"isFirstPlayer"`
}

func NewMatched(opponentName string, seed int64, first bool) *Matched {
	return &Matched{Type: MsgTypeMatched, OpponentName: opponentName, Seed: seed, IsFirstPlayer: first}
}

func (m *Matched) MessageType() string { return m.Type }

type OpponentUpdate struct {
	Type      string `json:"type"`
	Score     int    `json:"score"`
	Remaining int    `json:"remaining"`
}

func NewOpponentUpdate(score, remaining int) *OpponentUpdate {
	return &OpponentUpdate{Type: MsgTypeOpponentUpdate, Score: score, Remaining: remaining}
}

func (m *OpponentUpdate) MessageType() string { return m.Type }

// GameOver ends a room from the recipient's point of view. Times are null
// when the corresponding player never reported completion.
type GameOver struct {
	Type          string   `json:"type"`
	Winner        string   `json:"winner"`
	MyScore       int      `json:"myScore"`
	MyTime        *float64 `json:"myTime"`
	OpponentScore int      `json:"opponentScore"`
	OpponentTime  *float64 `json:"opponentTime"`
	Reason        string   `json:"reason,omitempty"`
}

func (m *GameOver) MessageType() string { return m.Type }

type MatchTimeout struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func NewMatchTimeout(reason string) *MatchTimeout {
	return &MatchTimeout{Type: MsgTypeMatchTimeout, Reason: reason}
}

func (m *MatchTimeout) MessageType() string { return m.Type }

// Encode marshals a message into a single JSON frame.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeAction parses a client frame.
func DecodeAction(data []byte) (*Action, error) {
	var action Action
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, err
	}
	if action.Type == "" {
		return nil, ErrMissingType
	}
	return &action, nil
}
