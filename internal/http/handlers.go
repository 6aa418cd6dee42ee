package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/geotrack/internal/config"
	"github.com/example/geotrack/internal/dispatch"
	"github.com/example/geotrack/internal/ingest"
	"github.com/example/geotrack/internal/logging"
	"github.com/example/geotrack/internal/models"
	"github.com/example/geotrack/internal/presence"
	"github.com/example/geotrack/internal/rooms"
	"github.com/example/geotrack/internal/storage"
	"github.com/example/geotrack/internal/tracker"
)

type Server struct {
	Tracker  *tracker.Tracker
	Presence presence.Store
	Rooms    *rooms.Registry
	Store    storage.TrackStore
	Kafka    *ingest.KafkaProducer
	Hub      *dispatch.Hub

	logger *slog.Logger
	mux    *mux.Router
	now    func() time.Time
}

// NewServer wires the store layer from config: Redis presence and Postgres
// tracking when configured, in-memory fallbacks otherwise, optional Kafka
// publishing.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	var store storage.TrackStore
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Error("postgres unavailable, falling back to memory store", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	var pres presence.Store
	if cfg.RedisAddr != "" {
		pres = presence.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.UserTimeout)
	} else {
		pres = presence.NewMemory(cfg.UserTimeout)
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	reg := rooms.NewRegistry()
	tr := tracker.New(
		pres,
		tracker.NewRouteSampler(store, cfg.Tracker),
		tracker.NewPinEngine(reg, store, cfg.Tracker),
		cfg.Tracker,
		logging.Component(logger, "tracker"),
	)
	return newServer(tr, pres, reg, store, kp, logger)
}

func newServer(tr *tracker.Tracker, pres presence.Store, reg *rooms.Registry, store storage.TrackStore, kp *ingest.KafkaProducer, logger *slog.Logger) *Server {
	s := &Server{
		Tracker:  tr,
		Presence: pres,
		Rooms:    reg,
		Store:    store,
		Kafka:    kp,
		Hub:      dispatch.NewHub(logging.Component(logger, "ws")),
		logger:   logger,
		mux:      mux.NewRouter(),
		now:      time.Now,
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/update_location", s.handleUpdateLocation).Methods("POST")
	s.mux.HandleFunc("/get_locations/{room}", s.handleGetLocations).Methods("GET")
	s.mux.HandleFunc("/get_location_history/{user}", s.handleGetHistory).Methods("GET")
	s.mux.HandleFunc("/clear_history/{user}", s.handleClearHistory).Methods("DELETE")

	s.mux.HandleFunc("/create_pin", s.handleCreatePin).Methods("POST")
	s.mux.HandleFunc("/get_pins/{room}", s.handleGetPins).Methods("GET")
	s.mux.HandleFunc("/remove_pin/{pin}", s.handleRemovePin).Methods("DELETE")
	s.mux.HandleFunc("/get_scores/{room}", s.handleGetScores).Methods("GET")
	s.mux.HandleFunc("/get_collection_history/{room}/{user}", s.handleCollectionHistory).Methods("GET")

	s.mux.HandleFunc("/create_room", s.handleCreateRoom).Methods("POST")
	s.mux.HandleFunc("/join_room", s.handleJoinRoom).Methods("POST")
	s.mux.HandleFunc("/get_rooms", s.handleGetRooms).Methods("GET")
	s.mux.HandleFunc("/delete_room/{room}", s.handleDeleteRoom).Methods("DELETE")
	s.mux.HandleFunc("/get_room_password/{room}", s.handleRoomPassword).Methods("GET")
	s.mux.HandleFunc("/change_room_password/{room}", s.handleChangePassword).Methods("POST")
	s.mux.HandleFunc("/set_collector_permission/{room}/{user}", s.handleSetCollector).Methods("POST")
	s.mux.HandleFunc("/get_room_permissions/{room}", s.handleRoomPermissions).Methods("GET")

	s.mux.HandleFunc("/set_visibility", s.handleSetVisibility).Methods("POST")
	s.mux.HandleFunc("/get_visibility/{user}", s.handleGetVisibility).Methods("GET")

	s.mux.HandleFunc("/remove_user/{user}", s.handleRemoveUser).Methods("DELETE")
	s.mux.HandleFunc("/clear", s.handleClear).Methods("POST")
	s.mux.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{room}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type locationView struct {
	UserID      string  `json:"userId"`
	DeviceID    string  `json:"deviceId,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Altitude    float64 `json:"altitude"`
	Speed       float64 `json:"speed"`
	RoomName    string  `json:"roomName"`
	IdleStatus  string  `json:"idleStatus"`
	IdleMinutes int     `json:"idleMinutes"`
}

func viewOf(p models.UserPresence) locationView {
	return locationView{
		UserID:      p.UserID,
		DeviceID:    p.DeviceID,
		Lat:         p.Position.Lat,
		Lng:         p.Position.Lng,
		Altitude:    p.Position.Altitude,
		Speed:       p.Speed,
		RoomName:    p.RoomName,
		IdleStatus:  string(p.IdleStatus),
		IdleMinutes: p.IdleMinutes,
	}
}

type historyView struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Altitude  float64   `json:"altitude"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

type pinView struct {
	ID                string    `json:"id"`
	RoomName          string    `json:"roomName"`
	Creator           string    `json:"creator"`
	Lat               float64   `json:"lat"`
	Lng               float64   `json:"lng"`
	CreatedAt         time.Time `json:"createdAt"`
	CollectorID       string    `json:"collectorId,omitempty"`
	CollectionElapsed int       `json:"collectionElapsed"`
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	var rep models.LocationReport
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rep.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	if rep.RoomName == "" {
		rep.RoomName = rooms.GeneralRoom
	}
	cur, err := s.Tracker.UpdateLocation(rep)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// firehose and live feed are best-effort side channels
	if s.Kafka != nil {
		if err := s.Kafka.PublishReport(rep); err != nil {
			s.logger.Warn("kafka publish failed", "user", rep.UserID, "error", err)
		}
	}
	s.Hub.Broadcast(rep.RoomName, viewOf(cur))
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetLocations(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	viewer := r.URL.Query().Get("viewer_id")
	out := make([]locationView, 0)
	for _, p := range s.Presence.List(room, s.now()) {
		if !s.Rooms.Visible(p.UserID, viewer) {
			continue
		}
		out = append(out, viewOf(p))
	}
	s.writeJSON(w, out)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	period := r.URL.Query().Get("period")
	pts, err := s.Tracker.Routes.History(user, period, s.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out := make([]historyView, 0, len(pts))
	for _, p := range pts {
		out = append(out, historyView{Lat: p.Position.Lat, Lng: p.Position.Lng, Altitude: p.Position.Altitude, Speed: p.Speed, Timestamp: p.RecordedAt})
	}
	s.writeJSON(w, out)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	n, err := s.Tracker.Routes.Clear(user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, map[string]any{"status": "ok", "cleared": n})
}

func (s *Server) handleCreatePin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomName string  `json:"roomName"`
		Creator  string  `json:"creator"`
		Lat      float64 `json:"lat"`
		Lng      float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Creator == "" || req.RoomName == "" {
		http.Error(w, "roomName and creator are required", http.StatusBadRequest)
		return
	}
	pin, err := s.Tracker.Pins.CreatePin(req.RoomName, req.Creator, models.Position{Lat: req.Lat, Lng: req.Lng}, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok", "pinId": pin.ID})
}

func (s *Server) handleGetPins(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	pins := s.Tracker.Pins.Pins(room, s.now())
	out := make([]pinView, 0, len(pins))
	for _, p := range pins {
		out = append(out, pinView{
			ID:                p.ID,
			RoomName:          p.RoomName,
			Creator:           p.Creator,
			Lat:               p.Position.Lat,
			Lng:               p.Position.Lng,
			CreatedAt:         p.CreatedAt,
			CollectorID:       p.CollectorID,
			CollectionElapsed: p.CollectionElapsed,
		})
	}
	s.writeJSON(w, out)
}

func (s *Server) handleRemovePin(w http.ResponseWriter, r *http.Request) {
	pinID := mux.Vars(r)["pin"]
	userID := r.URL.Query().Get("user_id")
	if err := s.Tracker.Pins.RemovePin(pinID, userID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.Store.Scores(mux.Vars(r)["room"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if scores == nil {
		scores = []models.ScoreEntry{}
	}
	s.writeJSON(w, scores)
}

func (s *Server) handleCollectionHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	events, err := s.Store.Collections(vars["room"], vars["user"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []models.CollectionEvent{}
	}
	s.writeJSON(w, events)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomName  string `json:"roomName"`
		Password  string `json:"password"`
		CreatedBy string `json:"createdBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.RoomName == "" || req.CreatedBy == "" {
		http.Error(w, "roomName and createdBy are required", http.StatusBadRequest)
		return
	}
	if err := s.Rooms.Create(req.RoomName, req.Password, req.CreatedBy, s.now()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomName string `json:"roomName"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Rooms.Join(req.RoomName, req.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetRooms(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	s.writeJSON(w, s.Rooms.List(userID, s.Presence.CountByRoom()))
}

// handleDeleteRoom relocates members to the general room and purges the
// room's pins, scores, and collection events along with the room itself.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	adminID := r.URL.Query().Get("admin_id")
	if err := s.Rooms.Delete(room, adminID); err != nil {
		s.fail(w, r, err)
		return
	}
	moved := s.Presence.MoveRoom(room, rooms.GeneralRoom)
	s.Tracker.Pins.PurgeRoom(room)
	if err := s.Store.PurgeRoom(room); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("room deleted", "room", room, "members_moved", moved)
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleRoomPassword(w http.ResponseWriter, r *http.Request) {
	pw, err := s.Rooms.Password(mux.Vars(r)["room"], r.URL.Query().Get("admin_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, map[string]string{"password": pw})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdminID     string `json:"adminId"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Rooms.ChangePassword(mux.Vars(r)["room"], req.AdminID, req.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleSetCollector(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req struct {
		AdminID string `json:"adminId"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Rooms.SetCollector(vars["room"], req.AdminID, vars["user"], req.Enabled); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleRoomPermissions(w http.ResponseWriter, r *http.Request) {
	admin, collectors, ok := s.Rooms.Permissions(mux.Vars(r)["room"])
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]any{"admin": admin, "collectors": collectors})
}

func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string   `json:"userId"`
		Mode    string   `json:"mode"`
		Allowed []string `json:"allowed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	s.Rooms.SetVisibility(req.UserID, models.Visibility{Mode: models.VisibilityMode(req.Mode), Allowed: req.Allowed})
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetVisibility(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.Rooms.Visibility(mux.Vars(r)["user"]))
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	if !s.Presence.Remove(mux.Vars(r)["user"]) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.Presence.Clear()
	s.Rooms.Clear()
	s.Tracker.Pins.Clear()
	if err := s.Store.Reset(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Warn("all data cleared")
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts := s.Presence.CountByRoom()
	users := 0
	for _, n := range counts {
		users += n
	}
	points, err := s.Store.TotalRoutePoints()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, map[string]any{
		"users":        users,
		"rooms":        s.Rooms.Count() + 1, // created rooms plus general
		"pins":         s.Tracker.Pins.Count(),
		"route_points": points,
	})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	sess := s.Hub.Add(room, conn)
	// reader loop exists only to detect the close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.Hub.Remove(room, sess)
				return
			}
		}
	}()
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	http.Error(w, err.Error(), status)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound),
		errors.Is(err, tracker.ErrPinNotFound):
		return http.StatusNotFound
	case errors.Is(err, rooms.ErrWrongPassword):
		return http.StatusUnauthorized
	case errors.Is(err, rooms.ErrNotAdmin),
		errors.Is(err, tracker.ErrNotPinOwner):
		return http.StatusForbidden
	case errors.Is(err, rooms.ErrRoomExists),
		errors.Is(err, rooms.ErrReservedRoom),
		errors.Is(err, rooms.ErrWeakPassword),
		errors.Is(err, tracker.ErrDuplicatePin):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
