// Package metrics declares the prometheus collectors of the proximity service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "proximity"

// Search paths recorded in SearchesTotal.
const (
	PathResultCache = "result_cache"
	PathIndex       = "index"
	PathFallback    = "fallback"
)

var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Nearby searches served, by kind and candidate path.",
		},
		[]string{"kind", "path"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Latency of nearby searches.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"kind"},
	)

	SearchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_failures_total",
			Help:      "Nearby searches that returned an error, by kind and reason.",
		},
		[]string{"kind", "reason"},
	)

	IndexErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_errors_total",
			Help:      "Geo index operations that failed, by kind and operation.",
		},
		[]string{"kind", "op"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Entity snapshot lookups, by kind and result (hit, miss, error).",
		},
		[]string{"kind", "result"},
	)

	InvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidations_total",
			Help:      "Cache and index invalidations after store writes, by kind, event and outcome.",
		},
		[]string{"kind", "event", "outcome"},
	)

	ReindexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindex_entries_total",
			Help:      "Index entries written or removed by the reconciliation worker.",
		},
		[]string{"kind", "action"},
	)
)
