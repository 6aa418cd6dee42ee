package tracker

import (
	"time"

	"github.com/example/geotrack/internal/geo"
	"github.com/example/geotrack/internal/models"
)

// deriveIdle evaluates the two-state idle machine for an incoming report,
// using the snapshot from before the upsert. It returns the new status, the
// carried-over or reset idle clock, and the derived whole minutes.
//
// The machine: movement of at least IdleDistanceM resets the clock; anything
// less keeps it running, and status flips to idle once the clock has run for
// IdleTime.
func deriveIdle(prev *models.UserPresence, pos models.Position, now time.Time, cfg Config) (models.IdleStatus, time.Time, int) {
	if prev == nil {
		return models.StatusOnline, time.Time{}, 0
	}
	d := geo.DistanceMeters(prev.Position, pos)
	if d >= cfg.IdleDistanceM {
		return models.StatusOnline, time.Time{}, 0
	}
	idleSince := prev.IdleSince
	if idleSince.IsZero() {
		// clock starts at the previous report, not at this one
		idleSince = prev.LastSeen
		if idleSince.IsZero() {
			idleSince = now
		}
	}
	elapsed := now.Sub(idleSince)
	if elapsed >= cfg.IdleTime {
		return models.StatusIdle, idleSince, int(elapsed.Minutes())
	}
	return models.StatusOnline, idleSince, 0
}
