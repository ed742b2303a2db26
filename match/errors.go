package match

import "errors"

// Outcomes of operations that leave state untouched. The transport treats
// them as silent no-ops.
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrAlreadyWaiting = errors.New("connection already waiting for a match")
	ErrAlreadyInRoom  = errors.New("connection already in a room")
	ErrNotWaiting     = errors.New("connection is not waiting for a match")
)
