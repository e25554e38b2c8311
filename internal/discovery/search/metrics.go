package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_outcomes_total",
		Help: "Finalized search outcomes grouped by result.",
	}, []string{"result"})

	duplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "search_duplicate_announcements_suppressed_total",
		Help: "Resolutions skipped because the (term, count) pair was already announced.",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "search_sessions_active",
		Help: "Search sessions currently registered.",
	})
)
