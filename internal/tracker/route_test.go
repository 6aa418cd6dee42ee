package tracker

import (
	"testing"
	"time"

	"github.com/example/geotrack/internal/models"
	"github.com/example/geotrack/internal/storage"
)

func TestFirstPointAlwaysAppended(t *testing.T) {
	s := NewRouteSampler(storage.NewMemoryStore(), DefaultConfig())
	ok, err := s.MaybeAppend("u1", models.Position{Lat: 41, Lng: 29}, 0, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first point must always be appended")
	}
}

func TestSpeedBucketSampling(t *testing.T) {
	// last stored point at origin, new point ~12m north
	origin := models.Position{}
	next := latOffsetMeters(origin, 12)
	now := time.Now()

	cases := []struct {
		name     string
		speedKmh float64
		want     bool
	}{
		{"walking 5 km/h needs 10m", 5, true},
		{"vehicle 40 km/h needs 50m", 40, false},
		{"running 20 km/h needs 20m", 20, false},
		{"stationary needs 5m", 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewRouteSampler(storage.NewMemoryStore(), DefaultConfig())
			if _, err := s.MaybeAppend("u1", origin, tc.speedKmh, now); err != nil {
				t.Fatal(err)
			}
			got, err := s.MaybeAppend("u1", next, tc.speedKmh, now.Add(time.Second))
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("append = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRetentionPointCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPointsPerUser = 10
	store := storage.NewMemoryStore()
	s := NewRouteSampler(store, cfg)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pos := models.Position{}
	for i := 0; i <= cfg.MaxPointsPerUser; i++ {
		pos = latOffsetMeters(pos, 10) // each point clears the 5m idle bucket
		ok, err := s.MaybeAppend("u1", pos, 0, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("point %d unexpectedly rejected", i)
		}
	}
	pts, err := store.RoutePointsSince("u1", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != cfg.MaxPointsPerUser {
		t.Fatalf("expected %d points after cap, got %d", cfg.MaxPointsPerUser, len(pts))
	}
	// the first point is the one dropped
	if pts[0].RecordedAt.Equal(now) {
		t.Fatal("oldest point should have been evicted")
	}
	for i := 1; i < len(pts); i++ {
		if pts[i].RecordedAt.Before(pts[i-1].RecordedAt) {
			t.Fatal("route sequence out of order after trim")
		}
	}
}

func TestRetentionAgeCutoff(t *testing.T) {
	cfg := DefaultConfig()
	store := storage.NewMemoryStore()
	s := NewRouteSampler(store, cfg)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -cfg.MaxHistoryDays-1)
	if _, err := s.MaybeAppend("u1", models.Position{}, 0, old); err != nil {
		t.Fatal(err)
	}
	if _, err := s.MaybeAppend("u1", latOffsetMeters(models.Position{}, 10), 0, now); err != nil {
		t.Fatal(err)
	}
	pts, _ := store.RoutePointsSince("u1", time.Time{})
	if len(pts) != 1 {
		t.Fatalf("expected expired point dropped, got %d points", len(pts))
	}
}

func TestHistoryPeriods(t *testing.T) {
	store := storage.NewMemoryStore()
	s := NewRouteSampler(store, DefaultConfig())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pos := models.Position{}
	ages := []time.Duration{2 * time.Hour, 3 * 24 * time.Hour, 20 * 24 * time.Hour}
	for _, age := range ages {
		pos = latOffsetMeters(pos, 10)
		if _, err := s.MaybeAppend("u1", pos, 0, now.Add(-age)); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		period string
		want   int
	}{{"day", 1}, {"week", 2}, {"month", 3}, {"all", 3}}
	for _, tc := range cases {
		got, err := s.History("u1", tc.period, now)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tc.want {
			t.Fatalf("period %s: expected %d points, got %d", tc.period, tc.want, len(got))
		}
	}

	if _, err := s.History("u1", "fortnight", now); err == nil {
		t.Fatal("expected error for unknown period")
	}
}

func TestHistoryEmptyIsNotError(t *testing.T) {
	s := NewRouteSampler(storage.NewMemoryStore(), DefaultConfig())
	got, err := s.History("nobody", "all", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
}
