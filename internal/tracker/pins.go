package tracker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/geotrack/internal/geo"
	"github.com/example/geotrack/internal/models"
	"github.com/example/geotrack/internal/observability"
)

var (
	ErrDuplicatePin = errors.New("creator already has a pin in this room")
	ErrPinNotFound  = errors.New("pin not found")
	ErrNotPinOwner  = errors.New("only the pin creator may remove it")
)

// Permissions is the room-capability lookup the engine consults before any
// pin interaction.
type Permissions interface {
	IsCollector(room, userID string) bool
}

// Ledger commits a finished collection: the score increment and the event
// must land together or not at all.
type Ledger interface {
	FinalizeCollection(ev models.CollectionEvent, delta int) error
}

// PinEngine is a per-pin two-radius hysteresis geofence. A pin is unclaimed
// until a collector comes within the inner radius; the claim holds until
// that same collector leaves the outer radius, which finalizes the
// collection. The gap between the radii is a dead band so boundary jitter
// cannot claim and finish a pin in place.
type PinEngine struct {
	mu    sync.Mutex
	pins  map[string]*models.Pin
	perms Permissions
	store Ledger
	cfg   Config
}

func NewPinEngine(perms Permissions, store Ledger, cfg Config) *PinEngine {
	return &PinEngine{pins: make(map[string]*models.Pin), perms: perms, store: store, cfg: cfg}
}

func (e *PinEngine) CreatePin(room, creator string, pos models.Position, now time.Time) (models.Pin, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.pins {
		if p.RoomName == room && p.Creator == creator {
			return models.Pin{}, ErrDuplicatePin
		}
	}
	pin := &models.Pin{
		ID:        fmt.Sprintf("%s_%s_%d", room, creator, now.Unix()),
		RoomName:  room,
		Creator:   creator,
		Position:  pos,
		CreatedAt: now,
	}
	e.pins[pin.ID] = pin
	return *pin, nil
}

func (e *PinEngine) RemovePin(pinID, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	pin, ok := e.pins[pinID]
	if !ok {
		return ErrPinNotFound
	}
	if pin.Creator != userID {
		return ErrNotPinOwner
	}
	delete(e.pins, pinID)
	return nil
}

// Pins lists a room's pins with the collection progress indicator refreshed.
func (e *PinEngine) Pins(room string, now time.Time) []models.Pin {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Pin, 0)
	for _, p := range e.pins {
		if p.RoomName != room {
			continue
		}
		cp := *p
		if cp.CollectorID != "" {
			cp.CollectionElapsed = int(now.Sub(cp.CollectionStarted).Seconds())
		}
		out = append(out, cp)
	}
	return out
}

// Observe runs the geofence transition for every pin in the reporter's room.
// The whole scan holds the engine lock, so a claim is a compare-and-set: two
// concurrent reporters cannot both observe an unclaimed pin.
func (e *PinEngine) Observe(userID, room string, pos models.Position, now time.Time) error {
	if !e.perms.IsCollector(room, userID) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, pin := range e.pins {
		if pin.RoomName != room || pin.Creator == userID {
			continue
		}
		d := geo.DistanceMeters(pos, pin.Position)
		switch {
		case d <= e.cfg.InnerRadiusM:
			if pin.CollectorID == "" {
				// first claim wins
				pin.CollectorID = userID
				pin.CollectionStarted = now
				pin.CollectionElapsed = 0
				observability.PinsClaimed.Inc()
			} else if pin.CollectorID == userID {
				pin.CollectionElapsed = int(now.Sub(pin.CollectionStarted).Seconds())
			}
			// held by someone else: reporter is ignored for this pin
		case d > e.cfg.OuterRadiusM:
			if pin.CollectorID != userID {
				continue
			}
			if err := e.finalize(id, pin, userID, now); err != nil {
				return err
			}
		}
		// inner < d <= outer is the hysteresis dead band: no transition
	}
	return nil
}

// finalize commits score and event atomically through the ledger, then
// deletes the pin. A ledger failure leaves the pin claimed and nothing
// scored, so the next departure retries the whole commit.
func (e *PinEngine) finalize(id string, pin *models.Pin, collector string, now time.Time) error {
	ev := models.CollectionEvent{
		ID:          uuid.NewString(),
		RoomName:    pin.RoomName,
		PinID:       pin.ID,
		CollectorID: collector,
		CreatorID:   pin.Creator,
		Position:    pin.Position,
		CreatedAt:   pin.CreatedAt,
		CollectedAt: now,
	}
	if err := e.store.FinalizeCollection(ev, 1); err != nil {
		return err
	}
	delete(e.pins, id)
	observability.PinsCollected.Inc()
	return nil
}

// PurgeRoom drops every pin in the room, claimed or not.
func (e *PinEngine) PurgeRoom(room string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, p := range e.pins {
		if p.RoomName == room {
			delete(e.pins, id)
		}
	}
}

func (e *PinEngine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pins)
}

func (e *PinEngine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pins = make(map[string]*models.Pin)
}
