package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/geotrack/internal/tracker"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	// UserTimeout is the presence liveness window; entries not refreshed
	// within it are evicted on the next read.
	UserTimeout time.Duration

	Tracker tracker.Config

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		KafkaTopic:      "location-reports",
		UserTimeout:     120 * time.Second,
		Tracker:         tracker.DefaultConfig(),
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setDurationFromEnv(&cfg.UserTimeout, "USER_TIMEOUT", &errs)

	setFloatFromEnv(&cfg.Tracker.IdleDistanceM, "IDLE_DISTANCE_M", &errs)
	setDurationFromEnv(&cfg.Tracker.IdleTime, "IDLE_TIME", &errs)
	setFloatFromEnv(&cfg.Tracker.VehicleSpeedKmh, "SPEED_VEHICLE_KMH", &errs)
	setFloatFromEnv(&cfg.Tracker.RunSpeedKmh, "SPEED_RUN_KMH", &errs)
	setFloatFromEnv(&cfg.Tracker.WalkSpeedKmh, "SPEED_WALK_KMH", &errs)
	setFloatFromEnv(&cfg.Tracker.VehicleDistM, "DIST_VEHICLE_M", &errs)
	setFloatFromEnv(&cfg.Tracker.RunDistM, "DIST_RUN_M", &errs)
	setFloatFromEnv(&cfg.Tracker.WalkDistM, "DIST_WALK_M", &errs)
	setFloatFromEnv(&cfg.Tracker.IdleDistM, "DIST_IDLE_M", &errs)
	setIntFromEnv(&cfg.Tracker.MaxPointsPerUser, "MAX_POINTS_PER_USER", &errs)
	setIntFromEnv(&cfg.Tracker.MaxHistoryDays, "MAX_HISTORY_DAYS", &errs)
	setFloatFromEnv(&cfg.Tracker.InnerRadiusM, "PIN_INNER_RADIUS_M", &errs)
	setFloatFromEnv(&cfg.Tracker.OuterRadiusM, "PIN_OUTER_RADIUS_M", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.UserTimeout <= 0 {
		errs = append(errs, fmt.Errorf("USER_TIMEOUT must be > 0"))
	}
	if cfg.Tracker.MaxPointsPerUser <= 0 {
		errs = append(errs, fmt.Errorf("MAX_POINTS_PER_USER must be > 0"))
	}
	if cfg.Tracker.OuterRadiusM <= cfg.Tracker.InnerRadiusM {
		errs = append(errs, fmt.Errorf("PIN_OUTER_RADIUS_M must exceed PIN_INNER_RADIUS_M"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
