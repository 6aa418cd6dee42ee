package tracker

import (
	"fmt"
	"time"

	"github.com/example/geotrack/internal/geo"
	"github.com/example/geotrack/internal/models"
	"github.com/example/geotrack/internal/observability"
	"github.com/example/geotrack/internal/storage"
)

// RouteSampler decides whether an incoming point joins the user's route
// history. Fast movers get coarse sampling to bound storage, near-stationary
// users get fine sampling so a trail still forms.
type RouteSampler struct {
	store storage.TrackStore
	cfg   Config
}

func NewRouteSampler(store storage.TrackStore, cfg Config) *RouteSampler {
	return &RouteSampler{store: store, cfg: cfg}
}

// MaybeAppend appends the point iff it is at least the speed bucket's
// minimum distance from the last stored point. The first point is always
// appended. Retention runs after every append: age cutoff first, then the
// per-user point cap, oldest dropped.
func (s *RouteSampler) MaybeAppend(userID string, pos models.Position, speedKmh float64, now time.Time) (bool, error) {
	last, ok, err := s.store.LastRoutePoint(userID)
	if err != nil {
		return false, err
	}
	if ok {
		if geo.DistanceMeters(last.Position, pos) < s.minDistance(speedKmh) {
			observability.RoutePointsSkipped.Inc()
			return false, nil
		}
	}
	pt := models.RoutePoint{Position: pos, Speed: speedKmh, RecordedAt: now}
	if err := s.store.AppendRoutePoint(userID, pt); err != nil {
		return false, err
	}
	cutoff := now.AddDate(0, 0, -s.cfg.MaxHistoryDays)
	if err := s.store.TrimRoute(userID, cutoff, s.cfg.MaxPointsPerUser); err != nil {
		return false, err
	}
	observability.RoutePointsAppended.Inc()
	return true, nil
}

func (s *RouteSampler) minDistance(speedKmh float64) float64 {
	switch {
	case speedKmh >= s.cfg.VehicleSpeedKmh:
		return s.cfg.VehicleDistM
	case speedKmh >= s.cfg.RunSpeedKmh:
		return s.cfg.RunDistM
	case speedKmh >= s.cfg.WalkSpeedKmh:
		return s.cfg.WalkDistM
	default:
		return s.cfg.IdleDistM
	}
}

// History returns the stored route filtered to a relative window. An empty
// result is not an error.
func (s *RouteSampler) History(userID, period string, now time.Time) ([]models.RoutePoint, error) {
	since, err := periodStart(period, now)
	if err != nil {
		return nil, err
	}
	return s.store.RoutePointsSince(userID, since)
}

func (s *RouteSampler) Clear(userID string) (int, error) {
	return s.store.ClearRoute(userID)
}

func periodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case "", "all":
		return time.Time{}, nil
	case "day":
		return now.AddDate(0, 0, -1), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, 0, -30), nil
	case "year":
		return now.AddDate(0, 0, -365), nil
	default:
		return time.Time{}, fmt.Errorf("unknown period %q", period)
	}
}
