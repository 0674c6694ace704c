package rto

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cutoffJoinsTotal counts cutoff joins by estimate classification.
	cutoffJoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rto_cutoff_joins_total",
		Help: "Total cutoff joins by estimate classification",
	}, []string{"estimate"})

	// cutoffJoinFailures counts cutoff joins that raised an execution fault.
	cutoffJoinFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rto_cutoff_join_failures_total",
		Help: "Total cutoff joins that failed during execution",
	})

	// cutoffJoinTuplesRead tracks access path tuples read per cutoff join.
	cutoffJoinTuplesRead = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rto_cutoff_join_tuples_read",
		Help:    "Access path tuples read per cutoff join",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	})

	// searchRoundsTotal counts completed join graph rounds.
	searchRoundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rto_search_rounds_total",
		Help: "Total join graph exploration rounds",
	})

	// prunedPathsTotal counts paths dropped because a cheaper unordered
	// variant exists.
	prunedPathsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rto_pruned_paths_total",
		Help: "Total paths pruned by a cheaper unordered variant",
	})
)
