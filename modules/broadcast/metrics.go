package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registry_sessions_connected",
		Help: "Number of connected push sessions.",
	})

	sessionsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_sessions_dropped_total",
		Help: "Sessions disconnected because their outbound queue was full.",
	})
)
