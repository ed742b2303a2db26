package match

import "time"

// queue is the single matchmaking slot.
type queue struct {
	connID string
	since  time.Time
}

func (q *queue) empty() bool {
	return q.connID == ""
}

func (q *queue) holds(connID string) bool {
	return !q.empty() && q.connID == connID
}

func (q *queue) put(connID string, now time.Time) {
	q.connID = connID
	q.since = now
}

func (q *queue) clear() string {
	connID := q.connID
	q.connID = ""
	q.since = time.Time{}
	return connID
}
