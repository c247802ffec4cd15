package broker

import (
	"sync"
	"time"
)

// RoomStore maps room names to rooms. Rooms are created on first use and
// kept for the lifetime of the store.
type RoomStore struct {
	now func() time.Time

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRoomStore builds an empty store. A nil clock means time.Now.
func NewRoomStore(now func() time.Time) *RoomStore {
	return &RoomStore{now: now, rooms: make(map[string]*Room)}
}

func (s *RoomStore) GetOrCreate(name string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[name]
	if ok {
		return room
	}
	room = newRoom(name, s.now)
	s.rooms[name] = room
	return room
}

// Lookup returns the room without creating it.
func (s *RoomStore) Lookup(name string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[name]
	return room, ok
}

func (s *RoomStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
