package game

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// roomCodeAlphabet avoids characters that read ambiguously on a shared
// screen (no 0/O, 1/I).
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const roomCodeLength = 4

// RoomStore is an in-memory registry of live sessions keyed by room
// code. Sessions exist only while the process runs.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*SkullGame
	rng   *rand.Rand
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*SkullGame),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateRoom registers a fresh session under a newly generated unique
// code and returns it.
func (s *RoomStore) CreateRoom() *SkullGame {
	s.mu.Lock()
	defer s.mu.Unlock()

	var code string
	for {
		code = s.generateCode()
		if _, taken := s.rooms[code]; !taken {
			break
		}
	}

	g := NewSkullGame()
	g.Code = code
	s.rooms[code] = g
	return g
}

// GetRoom looks up a session by code (case-insensitive).
func (s *RoomStore) GetRoom(code string) (*SkullGame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.rooms[strings.ToUpper(code)]
	return g, ok
}

// GetOrCreateRoom returns the session for code, registering an empty one
// if none exists yet. Whether the caller is allowed to populate a fresh
// room is decided at join time.
func (s *RoomStore) GetOrCreateRoom(code string) *SkullGame {
	code = strings.ToUpper(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.rooms[code]; ok {
		return g
	}
	g := NewSkullGame()
	g.Code = code
	s.rooms[code] = g
	return g
}

// DeleteRoom drops a session from the registry.
func (s *RoomStore) DeleteRoom(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, strings.ToUpper(code))
}

func (s *RoomStore) generateCode() string {
	b := make([]byte, roomCodeLength)
	for i := range b {
		b[i] = roomCodeAlphabet[s.rng.Intn(len(roomCodeAlphabet))]
	}
	return string(b)
}
