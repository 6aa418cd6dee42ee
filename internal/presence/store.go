package presence

import (
	"sync"
	"time"

	"github.com/example/geotrack/internal/models"
	"github.com/example/geotrack/internal/observability"
)

// Store is the minimal interface required by the tracker and handlers.
// Upsert replaces the whole snapshot and returns the previous one, which
// the idle detector needs before it is overwritten. List performs the
// lazy timeout sweep before filtering by room.
type Store interface {
	Upsert(p models.UserPresence) (prev models.UserPresence, existed bool)
	Get(userID string) (models.UserPresence, bool)
	List(roomName string, now time.Time) []models.UserPresence
	Remove(userID string) bool
	MoveRoom(from, to string) int
	CountByRoom() map[string]int
	Clear()
}

type Memory struct {
	mu      sync.RWMutex
	users   map[string]models.UserPresence
	timeout time.Duration
}

func NewMemory(timeout time.Duration) *Memory {
	return &Memory{users: make(map[string]models.UserPresence), timeout: timeout}
}

func (m *Memory) Upsert(p models.UserPresence) (models.UserPresence, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, existed := m.users[p.UserID]
	m.users[p.UserID] = p
	return prev, existed
}

func (m *Memory) Get(userID string) (models.UserPresence, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.users[userID]
	return p, ok
}

// List evicts every entry not seen within the timeout window, then returns
// the remaining entries for the room. Eviction is read-triggered; there is
// no background sweeper.
func (m *Memory) List(roomName string, now time.Time) []models.UserPresence {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.users {
		if now.Sub(p.LastSeen) > m.timeout {
			delete(m.users, id)
			observability.PresenceEvictions.Inc()
		}
	}
	out := make([]models.UserPresence, 0, len(m.users))
	for _, p := range m.users {
		if p.RoomName == roomName {
			out = append(out, p)
		}
	}
	return out
}

func (m *Memory) Remove(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return false
	}
	delete(m.users, userID)
	return true
}

// MoveRoom reassigns every member of one room to another, returning how
// many were moved. Used when a room is deleted.
func (m *Memory) MoveRoom(from, to string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	moved := 0
	for id, p := range m.users {
		if p.RoomName == from {
			p.RoomName = to
			m.users[id] = p
			moved++
		}
	}
	return moved
}

func (m *Memory) CountByRoom() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, p := range m.users {
		counts[p.RoomName]++
	}
	return counts
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[string]models.UserPresence)
}
