package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrackedMemoryBytes is the sum of all live allocations reported to memory trackers
	TrackedMemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiver_tracked_memory_bytes",
			Help: "Bytes currently reported to allocation trackers",
		},
	)

	// ArenaPagesTotal counts pages appended to adjacency arenas
	ArenaPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_arena_pages_total",
			Help: "Total number of arena pages allocated",
		},
		[]string{"kind"}, // "regular", "oversized"
	)

	// ArenaAllocatedBytes counts bytes handed out by arena allocators
	ArenaAllocatedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_arena_allocated_bytes_total",
			Help: "Total bytes written into arena pages",
		},
	)

	// AllocatorBytesAllocatedTotal counts bytes requested through tracking Arrow allocators
	AllocatorBytesAllocatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_allocator_bytes_allocated_total",
			Help: "Total bytes allocated through tracking Arrow allocators",
		},
	)

	// AllocatorBytesFreedTotal counts bytes released through tracking Arrow allocators
	AllocatorBytesFreedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_allocator_bytes_freed_total",
			Help: "Total bytes freed through tracking Arrow allocators",
		},
	)
)
