package tracker

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/geotrack/internal/models"
	"github.com/example/geotrack/internal/presence"
	"github.com/example/geotrack/internal/rooms"
	"github.com/example/geotrack/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(t *testing.T) (*Tracker, *storage.MemoryStore, *rooms.Registry, *fakeClock) {
	t.Helper()
	cfg := DefaultConfig()
	store := storage.NewMemoryStore()
	reg := rooms.NewRegistry()
	pres := presence.NewMemory(2 * time.Minute)
	tr := New(pres, NewRouteSampler(store, cfg), NewPinEngine(reg, store, cfg), cfg, testLogger())
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tr.SetClock(clock.Now)
	return tr, store, reg, clock
}

func report(user, room string, pos models.Position, speed float64) models.LocationReport {
	return models.LocationReport{UserID: user, RoomName: room, Lat: pos.Lat, Lng: pos.Lng, Altitude: pos.Altitude, Speed: speed}
}

func TestPipelineIdleMonotonicity(t *testing.T) {
	tr, _, _, clock := newTestTracker(t)
	pos := models.Position{Lat: 41, Lng: 29}

	cur, err := tr.UpdateLocation(report("u1", "general", pos, 0))
	if err != nil {
		t.Fatal(err)
	}
	if cur.IdleStatus != models.StatusOnline {
		t.Fatalf("first report must be online, got %v", cur.IdleStatus)
	}

	// identical position reported repeatedly past the idle threshold
	for i := 0; i < 4; i++ {
		clock.Advance(30 * time.Second)
		cur, err = tr.UpdateLocation(report("u1", "general", pos, 0))
		if err != nil {
			t.Fatal(err)
		}
	}
	if cur.IdleStatus != models.StatusIdle {
		t.Fatalf("expected idle after 2 minutes in place, got %v", cur.IdleStatus)
	}
	if cur.IdleMinutes != 2 {
		t.Fatalf("expected 2 idle minutes, got %d", cur.IdleMinutes)
	}

	// one report 20m away resets everything
	clock.Advance(30 * time.Second)
	cur, err = tr.UpdateLocation(report("u1", "general", latOffsetMeters(pos, 20), 4))
	if err != nil {
		t.Fatal(err)
	}
	if cur.IdleStatus != models.StatusOnline || cur.IdleMinutes != 0 {
		t.Fatalf("movement must reset idle state, got %v %d", cur.IdleStatus, cur.IdleMinutes)
	}
}

func TestPipelineCollectionScenario(t *testing.T) {
	tr, store, reg, clock := newTestTracker(t)
	now := clock.Now()

	if err := reg.Create("arena", "secret", "alice", now); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetCollector("arena", "alice", "bob", true); err != nil {
		t.Fatal(err)
	}

	origin := models.Position{}
	if _, err := tr.Pins.CreatePin("arena", "alice", origin, now); err != nil {
		t.Fatal(err)
	}

	// B approaches to 18m: pin becomes claimed by B
	if _, err := tr.UpdateLocation(report("bob", "arena", latOffsetMeters(origin, 18), 5)); err != nil {
		t.Fatal(err)
	}
	pins := tr.Pins.Pins("arena", clock.Now())
	if len(pins) != 1 || pins[0].CollectorID != "bob" {
		t.Fatalf("expected bob collecting, got %+v", pins)
	}

	// B departs to 26m: pin collected
	clock.Advance(10 * time.Second)
	if _, err := tr.UpdateLocation(report("bob", "arena", latOffsetMeters(origin, 26), 5)); err != nil {
		t.Fatal(err)
	}
	if pins := tr.Pins.Pins("arena", clock.Now()); len(pins) != 0 {
		t.Fatalf("pin should be gone, got %+v", pins)
	}
	scores, _ := store.Scores("arena")
	if len(scores) != 1 || scores[0].UserID != "bob" || scores[0].Score != 1 {
		t.Fatalf("expected bob score 1, got %+v", scores)
	}
	events, _ := store.Collections("arena", "bob")
	if len(events) != 1 {
		t.Fatalf("expected one collection event, got %d", len(events))
	}
}

func TestPipelineRouteAppend(t *testing.T) {
	tr, store, _, clock := newTestTracker(t)
	pos := models.Position{Lat: 41, Lng: 29}

	if _, err := tr.UpdateLocation(report("u1", "general", pos, 5)); err != nil {
		t.Fatal(err)
	}
	// 12m at walking speed clears the 10m bucket
	clock.Advance(10 * time.Second)
	if _, err := tr.UpdateLocation(report("u1", "general", latOffsetMeters(pos, 12), 5)); err != nil {
		t.Fatal(err)
	}
	// 12m at vehicle speed does not clear the 50m bucket
	clock.Advance(10 * time.Second)
	if _, err := tr.UpdateLocation(report("u1", "general", latOffsetMeters(pos, 24), 40)); err != nil {
		t.Fatal(err)
	}
	pts, _ := store.RoutePointsSince("u1", time.Time{})
	if len(pts) != 2 {
		t.Fatalf("expected 2 route points, got %d", len(pts))
	}
}

func TestUserLockStableAndBounded(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)
	if tr.userLock("u1") != tr.userLock("u1") {
		t.Fatal("same user must map to the same lock")
	}
	// many distinct users resolve into the fixed stripe set
	seen := make(map[*sync.Mutex]bool)
	for i := 0; i < 10*lockStripes; i++ {
		seen[tr.userLock(fmt.Sprintf("user-%d", i))] = true
	}
	if len(seen) > lockStripes {
		t.Fatalf("lock set exceeded %d stripes: %d", lockStripes, len(seen))
	}
}

func TestPipelineConcurrentSameUser(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)
	pos := models.Position{Lat: 41, Lng: 29}
	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := tr.UpdateLocation(report("u1", "general", pos, 0))
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := tr.Presence.Get("u1"); !ok {
		t.Fatal("presence entry missing")
	}
}
