package presence

import (
	"testing"
	"time"

	"github.com/example/geotrack/internal/models"
)

func TestUpsertReturnsPrevious(t *testing.T) {
	m := NewMemory(2 * time.Minute)
	now := time.Now()
	first := models.UserPresence{UserID: "u1", RoomName: "general", Position: models.Position{Lat: 1, Lng: 1}, LastSeen: now}
	if _, existed := m.Upsert(first); existed {
		t.Fatal("expected no previous snapshot on first report")
	}
	second := first
	second.Position.Lat = 2
	prev, existed := m.Upsert(second)
	if !existed {
		t.Fatal("expected previous snapshot")
	}
	if prev.Position.Lat != 1 {
		t.Fatalf("expected previous lat 1, got %f", prev.Position.Lat)
	}
	got, ok := m.Get("u1")
	if !ok || got.Position.Lat != 2 {
		t.Fatalf("upsert did not replace snapshot: %+v", got)
	}
}

func TestListEvictsTimedOutEntries(t *testing.T) {
	m := NewMemory(2 * time.Minute)
	now := time.Now()
	m.Upsert(models.UserPresence{UserID: "stale", RoomName: "general", LastSeen: now.Add(-3 * time.Minute)})
	m.Upsert(models.UserPresence{UserID: "fresh", RoomName: "general", LastSeen: now})

	got := m.List("general", now)
	if len(got) != 1 || got[0].UserID != "fresh" {
		t.Fatalf("expected only fresh entry, got %+v", got)
	}
	// eviction is a hard delete, not just a filter
	if _, ok := m.Get("stale"); ok {
		t.Fatal("stale entry should have been evicted")
	}
}

func TestListFiltersByRoom(t *testing.T) {
	m := NewMemory(2 * time.Minute)
	now := time.Now()
	m.Upsert(models.UserPresence{UserID: "a", RoomName: "alpha", LastSeen: now})
	m.Upsert(models.UserPresence{UserID: "b", RoomName: "beta", LastSeen: now})
	got := m.List("alpha", now)
	if len(got) != 1 || got[0].UserID != "a" {
		t.Fatalf("expected only room alpha, got %+v", got)
	}
}

func TestMoveRoom(t *testing.T) {
	m := NewMemory(2 * time.Minute)
	now := time.Now()
	m.Upsert(models.UserPresence{UserID: "a", RoomName: "alpha", LastSeen: now})
	m.Upsert(models.UserPresence{UserID: "b", RoomName: "alpha", LastSeen: now})
	m.Upsert(models.UserPresence{UserID: "c", RoomName: "beta", LastSeen: now})
	if moved := m.MoveRoom("alpha", "general"); moved != 2 {
		t.Fatalf("expected 2 moved, got %d", moved)
	}
	if got := m.List("general", now); len(got) != 2 {
		t.Fatalf("expected 2 in general, got %d", len(got))
	}
}

func TestRemove(t *testing.T) {
	m := NewMemory(2 * time.Minute)
	m.Upsert(models.UserPresence{UserID: "a", RoomName: "general", LastSeen: time.Now()})
	if !m.Remove("a") {
		t.Fatal("expected remove to succeed")
	}
	if m.Remove("a") {
		t.Fatal("expected second remove to report absence")
	}
}
