package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recenttrack_fetch_cycles_total",
		Help: "Settled fetch cycles by outcome",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recenttrack_fetch_duration_seconds",
		Help:    "Duration of feed requests that returned a response",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms up to ~5s
	})

	renders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recenttrack_renders_total",
		Help: "Container mutations by kind",
	}, []string{"kind"})

	activeTrackers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recenttrack_active_trackers",
		Help: "Trackers that are still polling",
	})

	droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recenttrack_dropped_events_total",
		Help: "Events dropped because the consumer channel was full",
	})
)
