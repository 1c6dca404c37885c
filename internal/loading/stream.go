package loading

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/23skdu/quiver/internal/adjacency"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/idmap"
	"github.com/23skdu/quiver/internal/source"
)

// StreamImporter loads relationships whose endpoints are not known up front.
// Every endpoint receives an intermediate id on first sight, relationships
// are buffered by intermediate id, and the flush translates them into the
// ids of the HighLimitIDMap built from all endpoints seen.
type StreamImporter struct {
	cfg   Config
	ids   *idmap.ShardedMap
	im    *relationshipImporter
	built atomic.Bool
}

// NewStreamImporter validates cfg and prepares an import of relationships
// carrying the given property keys.
func NewStreamImporter(cfg Config, propertyKeys []string) (*StreamImporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &StreamImporter{
		cfg: cfg,
		ids: idmap.NewShardedMap(cfg.workers() * 4),
	}
	s.im = newRelationshipImporter(&s.cfg, propertyKeys, s.intermediate, adjacency.UnknownSizing(s.cfg.workers()))
	return s, nil
}

func (s *StreamImporter) intermediate(original int64) int64 {
	id, _ := s.ids.Add(original)
	return id
}

// NewLocal returns a builder for one producer. Builders must be flushed
// before Build.
func (s *StreamImporter) NewLocal() *LocalRelationshipsBuilder {
	return s.im.newLocal()
}

// NodeCount returns the distinct endpoints seen so far.
func (s *StreamImporter) NodeCount() int64 {
	return s.ids.Size()
}

// Import scans edges with one local builder per worker and builds the graph.
func (s *StreamImporter) Import(ctx context.Context, edges source.EdgeSource) (*Graph, error) {
	phase := time.Now()
	if err := importRelationships(ctx, s.im, edges, s.cfg.workers()); err != nil {
		s.im.release()
		s.built.Store(true)
		return nil, err
	}
	observePhase("relationships", phase)
	return s.Build(ctx)
}

// Build freezes the endpoints into an id map and compresses the buffered
// relationships. It can be called once.
func (s *StreamImporter) Build(ctx context.Context) (*Graph, error) {
	if !s.built.CompareAndSwap(false, true) {
		return nil, qerrors.NewMisuseError("stream.build", "stream importer already built")
	}
	phase := time.Now()
	idMap, err := idmap.NewHighLimitIDMap(ctx, s.ids, s.cfg.workers(), s.cfg.Tracker)
	if err != nil {
		s.im.release()
		return nil, err
	}
	observePhase("idmap", phase)

	g, err := flushGraph(ctx, &s.cfg, s.im, idMap, idMap.IntermediateMapper())
	if err != nil {
		return nil, err
	}
	s.cfg.Logger.Info().
		Int64("nodes", g.NodeCount()).
		Int64("relationships", g.RelationshipCount()).
		Msg("Stream import built")
	return g, nil
}
