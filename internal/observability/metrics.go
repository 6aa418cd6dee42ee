package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LocationUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "geotrack", Name: "location_updates_total", Help: "Total location reports processed"})
	RoutePointsAppended  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "geotrack", Name: "route_points_appended_total", Help: "Route points accepted by the sampler"})
	RoutePointsSkipped   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "geotrack", Name: "route_points_skipped_total", Help: "Route points rejected by the minimum-distance filter"})
	PinsCollected        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "geotrack", Name: "pins_collected_total", Help: "Pins finalized by a collector"})
	PinsClaimed          = promauto.NewCounter(prometheus.CounterOpts{Namespace: "geotrack", Name: "pins_claimed_total", Help: "Pin collection attempts started"})
	PresenceEvictions    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "geotrack", Name: "presence_evictions_total", Help: "Presence entries dropped by the timeout sweep"})
	WSClients            = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "geotrack", Name: "ws_clients", Help: "Connected websocket feed clients"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "geotrack", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "geotrack",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
