// Package metrics holds the Prometheus collectors for config lookups and
// tuning runs. They register on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConfigLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convtune_config_lookups_total",
		Help: "Config database lookups by result (hit, miss, malformed)",
	}, []string{"device", "result"})

	RequestsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convtune_requests_logged_total",
		Help: "Unknown shapes appended to the request log",
	}, []string{"device"})

	Constructions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convtune_constructions_total",
		Help: "Kernel constructions by strategy",
	}, []string{"device", "strategy"})

	Searches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convtune_searches_total",
		Help: "Tuning searches by outcome (cached, tuned, fallback, canceled, error)",
	}, []string{"device", "outcome"})

	Candidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convtune_search_candidates_total",
		Help: "Search candidates by result (measured, skipped, failed)",
	}, []string{"device", "result"})

	CandidateTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "convtune_candidate_time_milliseconds",
		Help:    "Measured kernel time per search candidate",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100},
	}, []string{"device"})

	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "convtune_search_duration_seconds",
		Help:    "Wall time of a full tuning search",
		Buckets: []float64{0.01, 0.1, 1, 10, 60, 300, 900},
	}, []string{"device"})
)
