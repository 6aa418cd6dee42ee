package tracker

import "time"

// Config holds every numeric threshold of the location pipeline. All values
// have working defaults; the config package overrides them from environment
// variables.
type Config struct {
	// idle detection
	IdleDistanceM float64
	IdleTime      time.Duration

	// route sampling speed buckets (km/h) and their minimum distances (m)
	VehicleSpeedKmh float64
	RunSpeedKmh     float64
	WalkSpeedKmh    float64
	VehicleDistM    float64
	RunDistM        float64
	WalkDistM       float64
	IdleDistM       float64

	// route retention
	MaxPointsPerUser int
	MaxHistoryDays   int

	// pin geofence hysteresis
	InnerRadiusM float64
	OuterRadiusM float64
}

func DefaultConfig() Config {
	return Config{
		IdleDistanceM:    15,
		IdleTime:         time.Minute,
		VehicleSpeedKmh:  30,
		RunSpeedKmh:      15,
		WalkSpeedKmh:     3,
		VehicleDistM:     50,
		RunDistM:         20,
		WalkDistM:        10,
		IdleDistM:        5,
		MaxPointsPerUser: 5000,
		MaxHistoryDays:   90,
		InnerRadiusM:     20,
		OuterRadiusM:     25,
	}
}
