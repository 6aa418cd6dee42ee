package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/example/geotrack/internal/models"
)

// TrackStore defines persistence for route history, scores, and collection
// events. The tracker must not depend on whether it is memory or Postgres.
type TrackStore interface {
	AppendRoutePoint(userID string, pt models.RoutePoint) error
	LastRoutePoint(userID string) (models.RoutePoint, bool, error)
	// RoutePointsSince returns points recorded at or after since, oldest
	// first. A zero since returns the whole sequence.
	RoutePointsSince(userID string, since time.Time) ([]models.RoutePoint, error)
	TrimRoute(userID string, cutoff time.Time, maxPoints int) error
	ClearRoute(userID string) (int, error)

	// FinalizeCollection commits the score increment and the collection
	// event as one atomic unit; either both land or neither does.
	FinalizeCollection(ev models.CollectionEvent, delta int) error
	Scores(room string) ([]models.ScoreEntry, error)
	Collections(room, userID string) ([]models.CollectionEvent, error)

	PurgeRoom(room string) error
	TotalRoutePoints() (int, error)
	Reset() error
}

// eventKey identifies a collector's event stream without ambiguity when a
// room name itself contains a separator character.
type eventKey struct {
	room string
	user string
}

type MemoryStore struct {
	mu     sync.RWMutex
	routes map[string][]models.RoutePoint
	scores map[string]map[string]int // room -> user -> score
	events map[eventKey][]models.CollectionEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		routes: make(map[string][]models.RoutePoint),
		scores: make(map[string]map[string]int),
		events: make(map[eventKey][]models.CollectionEvent),
	}
}

func (m *MemoryStore) AppendRoutePoint(userID string, pt models.RoutePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[userID] = append(m.routes[userID], pt)
	return nil
}

func (m *MemoryStore) LastRoutePoint(userID string) (models.RoutePoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pts := m.routes[userID]
	if len(pts) == 0 {
		return models.RoutePoint{}, false, nil
	}
	return pts[len(pts)-1], true, nil
}

func (m *MemoryStore) RoutePointsSince(userID string, since time.Time) ([]models.RoutePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pts := m.routes[userID]
	out := make([]models.RoutePoint, 0, len(pts))
	for _, p := range pts {
		if since.IsZero() || !p.RecordedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) TrimRoute(userID string, cutoff time.Time, maxPoints int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pts := m.routes[userID]
	kept := pts[:0]
	for _, p := range pts {
		if p.RecordedAt.After(cutoff) {
			kept = append(kept, p)
		}
	}
	if len(kept) > maxPoints {
		kept = kept[len(kept)-maxPoints:]
	}
	m.routes[userID] = append([]models.RoutePoint(nil), kept...)
	return nil
}

func (m *MemoryStore) ClearRoute(userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.routes[userID])
	delete(m.routes, userID)
	return n, nil
}

func (m *MemoryStore) FinalizeCollection(ev models.CollectionEvent, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scores[ev.RoomName] == nil {
		m.scores[ev.RoomName] = make(map[string]int)
	}
	m.scores[ev.RoomName][ev.CollectorID] += delta
	key := eventKey{room: ev.RoomName, user: ev.CollectorID}
	m.events[key] = append(m.events[key], ev)
	return nil
}

func (m *MemoryStore) Scores(room string) ([]models.ScoreEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ScoreEntry, 0, len(m.scores[room]))
	for user, score := range m.scores[room] {
		out = append(out, models.ScoreEntry{UserID: user, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (m *MemoryStore) Collections(room, userID string) ([]models.CollectionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := m.events[eventKey{room: room, user: userID}]
	return append([]models.CollectionEvent(nil), evs...), nil
}

func (m *MemoryStore) PurgeRoom(room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scores, room)
	for key := range m.events {
		if key.room == room {
			delete(m.events, key)
		}
	}
	return nil
}

func (m *MemoryStore) TotalRoutePoints() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, pts := range m.routes {
		total += len(pts)
	}
	return total, nil
}

func (m *MemoryStore) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = make(map[string][]models.RoutePoint)
	m.scores = make(map[string]map[string]int)
	m.events = make(map[eventKey][]models.CollectionEvent)
	return nil
}
