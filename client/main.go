package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type serverMessage struct {
	Type          string   `json:"type"`
	ConnectionID  string   `json:"connectionId"`
	OpponentName  string   `json:"opponentName"`
	Seed          int64    `json:"seed"`
	IsFirstPlayer bool     `json:"isFirstPlayer"`
	Score         int      `json:"score"`
	Remaining     int      `json:"remaining"`
	Winner        string   `json:"winner"`
	MyScore       int      `json:"myScore"`
	OpponentScore int      `json:"opponentScore"`
	MyTime        *float64 `json:"myTime"`
	Reason        string   `json:"reason"`
}

var writeMutex sync.Mutex

func send(c *websocket.Conn, v interface{}) error {
	writeMutex.Lock()
	defer writeMutex.Unlock()
	return c.WriteJSON(v)
}

// play solves the puzzle a few pieces per step and reports completion.
func play(c *websocket.Conn, remaining int, step time.Duration, stop <-chan struct{}) {
	started := time.Now()
	score := 0
	for remaining > 0 {
		select {
		case <-stop:
			return
		case <-time.After(step):
		}
		solved := min(remaining, 8)
		remaining -= solved
		score += solved
		if err := send(c, map[string]interface{}{"type": "gameUpdate", "score": score, "remaining": remaining}); err != nil {
			log.Println("Write error:", err)
			return
		}
		log.Printf("-> SENT: gameUpdate score=%d remaining=%d", score, remaining)
	}

	elapsed := time.Since(started).Seconds()
	if err := send(c, map[string]interface{}{"type": "gameComplete", "score": score, "time": elapsed}); err != nil {
		log.Println("Write error:", err)
		return
	}
	log.Printf("-> SENT: gameComplete score=%d time=%.2fs", score, elapsed)
}

func main() {
	addr := flag.String("addr", "localhost:8080", "game server address")
	pieces := flag.Int("pieces", 64, "puzzle pieces to solve")
	step := flag.Duration("step", 500*time.Millisecond, "delay between updates")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			var msg serverMessage
			if err := c.ReadJSON(&msg); err != nil {
				log.Println("Read error:", err)
				return
			}
			raw, _ := json.Marshal(msg)
			log.Printf("<- RECV: %s", raw)

			switch msg.Type {
			case "connected":
				log.Printf("Connected as %s, looking for an opponent...", msg.ConnectionID)
				if err := send(c, map[string]string{"type": "startMatch"}); err != nil {
					log.Println("Write error:", err)
					return
				}
			case "matched":
				log.Printf("Matched with %s (seed %d, first player %v)", msg.OpponentName, msg.Seed, msg.IsFirstPlayer)
				go play(c, *pieces, *step, done)
			case "opponentUpdate":
				log.Printf("Opponent: score=%d remaining=%d", msg.Score, msg.Remaining)
			case "gameOver":
				log.Printf("Game over: winner=%s my=%d opponent=%d %s", msg.Winner, msg.MyScore, msg.OpponentScore, msg.Reason)
				return
			case "matchTimeout":
				log.Printf("No opponent found: %s", msg.Reason)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		log.Println("Interrupt received, closing connection.")
		writeMutex.Lock()
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMutex.Unlock()
		if err != nil {
			log.Println("Write close error:", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
