package dispatch

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/geotrack/internal/observability"
)

// WSSession wraps one subscriber connection; writes are serialized.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Hub holds websocket subscribers grouped by room. Each accepted location
// report is broadcast to the reporter's room so map clients update live.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*WSSession]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{rooms: make(map[string]map[*WSSession]struct{}), logger: logger}
}

func (h *Hub) Add(room string, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*WSSession]struct{})
	}
	h.rooms[room][s] = struct{}{}
	h.mu.Unlock()
	observability.WSClients.Inc()
	return s
}

func (h *Hub) Remove(room string, s *WSSession) {
	h.mu.Lock()
	if subs, ok := h.rooms[room]; ok {
		if _, present := subs[s]; present {
			delete(subs, s)
			observability.WSClients.Dec()
		}
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	_ = s.conn.Close()
}

// Broadcast sends v to every subscriber of the room, dropping sessions whose
// writes fail.
func (h *Hub) Broadcast(room string, v interface{}) {
	h.mu.RLock()
	subs := make([]*WSSession, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if err := s.Send(v); err != nil {
			h.logger.Warn("ws send failed, dropping subscriber", "room", room, "error", err)
			h.Remove(room, s)
		}
	}
}
