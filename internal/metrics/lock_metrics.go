package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PageLockWaitDuration measures time waiting for an adjacency buffer page lock
	PageLockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiver_page_lock_wait_duration_seconds",
			Help:    "Time spent waiting for adjacency buffer page locks",
			Buckets: []float64{1e-6, 1e-5, 1e-4, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	// PageLockAcquisitionsTotal counts page lock acquisitions
	PageLockAcquisitionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_page_lock_acquisitions_total",
			Help: "Total number of adjacency buffer page lock acquisitions",
		},
	)

	// ShardLockWaitDuration measures time waiting for sharded id map locks
	ShardLockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiver_shard_lock_wait_duration_seconds",
			Help:    "Time spent waiting for sharded id map locks",
			Buckets: []float64{1e-6, 1e-5, 1e-4, 0.001, 0.01},
		},
	)
)
