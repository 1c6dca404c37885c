package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RelationshipsImportedTotal counts relationships written into final adjacency lists
	RelationshipsImportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_relationships_imported_total",
			Help: "Total number of relationships written into compressed adjacency lists",
		},
		[]string{"direction"}, // "forward", "inverse"
	)

	// RelationshipsDroppedTotal counts edges discarded during ingestion
	RelationshipsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_relationships_dropped_total",
			Help: "Total number of relationships dropped during ingestion",
		},
		[]string{"reason"}, // "unresolved", "aggregated"
	)

	// BatchesFlushedTotal counts sorted batches folded into the accumulator
	BatchesFlushedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_batches_flushed_total",
			Help: "Total number of record batches flushed into adjacency buffers",
		},
	)

	// FlushDurationSeconds measures the compression of one accumulator page
	FlushDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiver_page_flush_duration_seconds",
			Help:    "Time spent compressing one adjacency buffer page",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
	)

	// RadixSortDurationSeconds measures batch sorting
	RadixSortDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiver_radix_sort_duration_seconds",
			Help:    "Time spent radix sorting a record batch",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
		},
	)

	// IDMapNodes tracks the node count of the most recently built id map
	IDMapNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quiver_idmap_nodes",
			Help: "Number of nodes in the most recently built id map",
		},
		[]string{"type"}, // "array", "bitmap", "highlimit", "filtered"
	)

	// LoadPhaseDurationSeconds measures the phases of a graph load
	LoadPhaseDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiver_load_phase_duration_seconds",
			Help:    "Duration of graph load phases",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"}, // "nodes", "idmap", "relationships", "flush"
	)

	// CatalogGraphs tracks the number of graphs held by the catalog
	CatalogGraphs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiver_catalog_graphs",
			Help: "Number of graphs registered in the catalog",
		},
	)

	// LogEntriesTotal counts log entries per level
	LogEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_log_entries_total",
			Help: "Total number of log entries by level",
		},
		[]string{"level"},
	)

	// LogErrorsTotal counts error and fatal log entries
	LogErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_log_errors_total",
			Help: "Total number of error level log entries",
		},
	)
)
