package loading

import (
	"context"
	"time"

	"github.com/23skdu/quiver/internal/adjacency"
	"github.com/23skdu/quiver/internal/codec"
	"github.com/23skdu/quiver/internal/concurrency"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/idmap"
	"github.com/23skdu/quiver/internal/metrics"
	"github.com/23skdu/quiver/internal/source"
)

// GraphLoader builds a Graph from a node source and a relationship source.
// Sources are owned by the caller and are not closed.
type GraphLoader struct {
	cfg Config
}

// NewGraphLoader validates cfg and returns a loader.
func NewGraphLoader(cfg Config) (*GraphLoader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GraphLoader{cfg: cfg}, nil
}

// Load ingests nodes into the id map, then relationships into the adjacency
// buffers, then compresses the buffers into the final lists. Without a node
// source, nodes are discovered from the relationships as by StreamImporter.
// On failure all intermediate memory is released and no graph is returned.
func (l *GraphLoader) Load(ctx context.Context, nodes source.ChunkSource[source.NodeRecord], edges source.EdgeSource) (*Graph, error) {
	if edges == nil {
		return nil, qerrors.NewValidationError("loader.load", "relationship source is required")
	}
	if nodes == nil {
		s, err := NewStreamImporter(l.cfg, edges.PropertyKeys())
		if err != nil {
			return nil, err
		}
		return s.Import(ctx, edges)
	}

	started := time.Now()
	logger := l.cfg.Logger
	logger.Info().
		Int("concurrency", l.cfg.workers()).
		Str("orientation", l.cfg.Orientation.String()).
		Str("compression", l.cfg.Compression.String()).
		Msg("Loading graph")

	idMap, err := l.loadNodes(ctx, nodes)
	if err != nil {
		logger.Error().Err(err).Msg("Node loading failed")
		return nil, err
	}

	keys := edges.PropertyKeys()
	sizing := adjacency.SizingFor(l.cfg.workers(), idMap.NodeCount())
	im := newRelationshipImporter(&l.cfg, keys, idMap.ToMapped, sizing)

	phase := time.Now()
	if err := importRelationships(ctx, im, edges, l.cfg.workers()); err != nil {
		im.release()
		logger.Error().Err(err).Msg("Relationship loading failed")
		return nil, err
	}
	observePhase("relationships", phase)
	logger.Info().
		Int64("offered", im.offered.Load()).
		Int64("dropped", im.dropped.Load()).
		Dur("duration", time.Since(phase)).
		Msg("Relationships buffered")

	g, err := flushGraph(ctx, &l.cfg, im, idMap, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Flush failed")
		return nil, err
	}
	logger.Info().
		Int64("nodes", g.NodeCount()).
		Int64("relationships", g.RelationshipCount()).
		Int64("size_bytes", g.SizeInBytes()).
		Dur("duration", time.Since(started)).
		Msg("Graph loaded")
	return g, nil
}

func (l *GraphLoader) loadNodes(ctx context.Context, nodes source.ChunkSource[source.NodeRecord]) (idmap.IDMap, error) {
	workers := l.cfg.workers()
	builder := idmap.NewNodesBuilder(idmap.BuilderConfig{
		Type:        l.cfg.IDMapType,
		Deduplicate: l.cfg.DeduplicateNodes,
		Concurrency: workers,
		Tracker:     l.cfg.Tracker,
		Logger:      l.cfg.Logger,
	})
	scanner := source.NewScanner(nodes)

	phase := time.Now()
	tasks := make([]concurrency.Task, workers)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			local := builder.NewLocal()
			defer local.Close()
			return scanNodes(ctx, scanner.NewCursor(), local)
		}
	}
	if err := concurrency.RunWithConcurrency(ctx, workers, tasks); err != nil {
		return nil, err
	}
	observePhase("nodes", phase)

	phase = time.Now()
	idMap, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	observePhase("idmap", phase)
	return idMap, nil
}

func scanNodes(ctx context.Context, cursor source.Cursor[source.NodeRecord], local *idmap.LocalBuilder) error {
	flag := concurrency.FromContext(ctx)
	add := func(rec source.NodeRecord) (bool, error) {
		return true, local.AddNode(rec.ID, rec.Labels...)
	}
	for {
		if err := concurrency.CheckRunning(flag, "nodes.scan"); err != nil {
			return err
		}
		ok, err := cursor.ReserveBatch(ctx)
		if err != nil || !ok {
			return err
		}
		if _, err := cursor.ConsumeBatch(add); err != nil {
			return err
		}
	}
}

// importRelationships runs one local builder per worker over a shared
// scanner and returns once every worker has flushed.
func importRelationships(ctx context.Context, im *relationshipImporter, edges source.EdgeSource, workers int) error {
	scanner := source.NewScanner[source.EdgeRecord](edges)
	tasks := make([]concurrency.Task, workers)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			return im.newLocal().Scan(ctx, scanner.NewCursor())
		}
	}
	return concurrency.RunWithConcurrency(ctx, workers, tasks)
}

// flushGraph compresses the buffers of im into a Graph over idMap. mapper
// translates buffered ids into mapped ids; nil keeps them.
func flushGraph(ctx context.Context, cfg *Config, im *relationshipImporter, idMap idmap.IDMap, mapper codec.ValueMapper) (*Graph, error) {
	defer im.release()
	phase := time.Now()
	nodeCount := idMap.NodeCount()

	topology, properties, err := flushBuffer(ctx, cfg, im, im.forward, nodeCount, mapper)
	if err != nil {
		return nil, err
	}
	g := &Graph{
		idMap:       idMap,
		orientation: cfg.Orientation,
		topology:    topology,
		properties:  properties,
		keys:        propertyKeys(cfg),
		dropped:     im.dropped.Load(),
	}
	metrics.RelationshipsImportedTotal.WithLabelValues("forward").Add(float64(topology.RelationshipCount()))

	if im.inverse != nil {
		inverse, inverseProperties, err := flushBuffer(ctx, cfg, im, im.inverse, nodeCount, mapper)
		if err != nil {
			g.Release()
			return nil, err
		}
		g.inverse, g.inverseProperties = inverse, inverseProperties
		metrics.RelationshipsImportedTotal.WithLabelValues("inverse").Add(float64(inverse.RelationshipCount()))
	}
	observePhase("flush", phase)
	cfg.Logger.Debug().
		Int64("relationships", topology.RelationshipCount()).
		Bool("inverse", im.inverse != nil).
		Dur("duration", time.Since(phase)).
		Msg("Flushed adjacency buffers")
	return g, nil
}

func flushBuffer(ctx context.Context, cfg *Config, im *relationshipImporter, buffer *adjacency.Buffer, nodeCount int64, mapper codec.ValueMapper) (*adjacency.AdjacencyList, []*adjacency.PropertyList, error) {
	factory := adjacency.NewCompressorFactory(adjacency.FactoryConfig{
		Compression:  cfg.Compression,
		NodeCount:    nodeCount,
		Aggregations: im.aggs,
		Deduplicate:  cfg.deduplicateTopology(),
		PageShift:    cfg.PageShift,
		Tracker:      cfg.Tracker,
	})
	if err := concurrency.RunWithConcurrency(ctx, cfg.workers(), buffer.FlushTasks(factory, mapper)); err != nil {
		if list, properties, buildErr := factory.Build(); buildErr == nil {
			releaseLists(list, properties)
		}
		return nil, nil, err
	}
	return factory.Build()
}

func releaseLists(list *adjacency.AdjacencyList, properties []*adjacency.PropertyList) {
	list.Release()
	for _, p := range properties {
		p.Release()
	}
}

func propertyKeys(cfg *Config) []string {
	keys := make([]string, len(cfg.Properties))
	for i, p := range cfg.Properties {
		keys[i] = p.Key
	}
	return keys
}

func observePhase(phase string, started time.Time) {
	metrics.LoadPhaseDurationSeconds.WithLabelValues(phase).Observe(time.Since(started).Seconds())
}
