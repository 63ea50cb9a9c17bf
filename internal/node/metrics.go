package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Event kinds counted by eventsTotal.
const (
	kindRegistered    = "registered"
	kindDuplicate     = "duplicate"
	kindCancelled     = "cancelled"
	kindForwarded     = "forwarded"
	kindFired         = "fired"
	kindScheduleError = "schedule_error"
)

var (
	activeWatches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conftimeout_active_watches",
			Help: "Number of topics with an armed countdown.",
		},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conftimeout_events_total",
			Help: "Registry events by kind.",
		},
		[]string{"kind"},
	)

	timeoutSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conftimeout_armed_timeout_seconds",
			Help:    "Length of armed countdowns in seconds, by where the value came from.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(activeWatches)
	prometheus.MustRegister(eventsTotal)
	prometheus.MustRegister(timeoutSeconds)
}
