package tracker

import (
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/example/geotrack/internal/models"
	"github.com/example/geotrack/internal/observability"
	"github.com/example/geotrack/internal/presence"
)

// Tracker runs the location-update pipeline: presence refresh with idle
// derivation, then route sampling, then the pin geofence. Reports for the
// same user are serialized through a per-user lock; different users proceed
// in parallel.
type Tracker struct {
	Presence presence.Store
	Routes   *RouteSampler
	Pins     *PinEngine

	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	// striped locks: bounded memory no matter how many users pass through
	userLocks [lockStripes]sync.Mutex
}

const lockStripes = 128

func New(store presence.Store, routes *RouteSampler, pins *PinEngine, cfg Config, logger *slog.Logger) *Tracker {
	return &Tracker{
		Presence: store,
		Routes:   routes,
		Pins:     pins,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

func (t *Tracker) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &t.userLocks[h.Sum32()%lockStripes]
}

// UpdateLocation processes one report and returns the resulting snapshot.
func (t *Tracker) UpdateLocation(rep models.LocationReport) (models.UserPresence, error) {
	lock := t.userLock(rep.UserID)
	lock.Lock()
	defer lock.Unlock()

	now := t.now()
	pos := rep.Position()

	var prev *models.UserPresence
	if p, ok := t.Presence.Get(rep.UserID); ok {
		prev = &p
	}
	status, idleSince, idleMinutes := deriveIdle(prev, pos, now, t.cfg)

	cur := models.UserPresence{
		UserID:      rep.UserID,
		DeviceID:    rep.DeviceID,
		Position:    pos,
		Speed:       rep.Speed,
		RoomName:    rep.RoomName,
		LastSeen:    now,
		IdleSince:   idleSince,
		IdleStatus:  status,
		IdleMinutes: idleMinutes,
	}
	t.Presence.Upsert(cur)

	appended, err := t.Routes.MaybeAppend(rep.UserID, pos, rep.Speed, now)
	if err != nil {
		return models.UserPresence{}, err
	}
	if err := t.Pins.Observe(rep.UserID, rep.RoomName, pos, now); err != nil {
		return models.UserPresence{}, err
	}

	observability.LocationUpdatesTotal.Inc()
	t.logger.Debug("location update",
		"user", rep.UserID,
		"room", rep.RoomName,
		"status", string(status),
		"route_appended", appended,
	)
	return cur, nil
}
