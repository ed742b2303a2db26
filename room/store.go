package room

// Store maps room ids to rooms and players to the room they are in. It is not
// safe for concurrent use.
type Store struct {
	rooms      map[string]*Room
	playerRoom map[string]string
}

func NewStore() *Store {
	return &Store{
		rooms:      make(map[string]*Room),
		playerRoom: make(map[string]string),
	}
}

// Add registers an open room. Neither player may already be in a room.
func (s *Store) Add(r *Room) error {
	for _, p := range r.Players {
		if _, exists := s.playerRoom[p]; exists {
			return ErrPlayerInRoom
		}
	}
	s.rooms[r.ID] = r
	for _, p := range r.Players {
		s.playerRoom[p] = r.ID
	}
	return nil
}

func (s *Store) Get(id string) (*Room, bool) {
	r, exists := s.rooms[id]
	return r, exists
}

// ForPlayer returns the room connID is currently in.
func (s *Store) ForPlayer(connID string) (*Room, bool) {
	id, exists := s.playerRoom[connID]
	if !exists {
		return nil, false
	}
	return s.Get(id)
}

// Remove deletes the room and both player associations. Only the first call
// for a given id reports true.
func (s *Store) Remove(id string) (*Room, bool) {
	r, exists := s.rooms[id]
	if !exists {
		return nil, false
	}
	delete(s.rooms, id)
	for _, p := range r.Players {
		if s.playerRoom[p] == id {
			delete(s.playerRoom, p)
		}
	}
	return r, true
}

func (s *Store) Len() int {
	return len(s.rooms)
}

// Each calls fn for every room until fn returns false.
func (s *Store) Each(fn func(*Room) bool) {
	for _, r := range s.rooms {
		if !fn(r) {
			return
		}
	}
}
