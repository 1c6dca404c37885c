package loading

import (
	"context"
	"sync/atomic"

	"github.com/23skdu/quiver/internal/adjacency"
	"github.com/23skdu/quiver/internal/aggregation"
	"github.com/23skdu/quiver/internal/batch"
	"github.com/23skdu/quiver/internal/concurrency"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/idmap"
	"github.com/23skdu/quiver/internal/metrics"
	"github.com/23skdu/quiver/internal/source"
)

// resolver translates an original node id, returning idmap.NotFound for
// unknown ids.
type resolver func(original int64) int64

// relationshipImporter holds the state shared by the local builders of one
// import: the adjacency buffers and the resolved property layout.
type relationshipImporter struct {
	cfg     *Config
	resolve resolver

	forward *adjacency.Buffer
	inverse *adjacency.Buffer

	keyIDs   []int
	defaults []float64
	aggs     []aggregation.Aggregation
	reader   PropertyReader

	offered atomic.Int64
	dropped atomic.Int64
}

func newRelationshipImporter(cfg *Config, keys []string, resolve resolver, sizing adjacency.ImportSizing) *relationshipImporter {
	aggs := cfg.aggregations()
	keyIDs := make([]int, len(cfg.Properties))
	defaults := make([]float64, len(cfg.Properties))
	for i, p := range cfg.Properties {
		keyIDs[i] = -1
		for k, key := range keys {
			if key == p.Key {
				keyIDs[i] = k
				break
			}
		}
		defaults[i] = p.DefaultValue
	}

	bufferCfg := adjacency.BufferConfig{
		Sizing:        sizing,
		PropertyCount: len(aggs),
		Aggregations:  aggs,
		PreAggregate:  cfg.PreAggregate,
		Tracker:       cfg.Tracker,
	}
	im := &relationshipImporter{
		cfg:      cfg,
		resolve:  resolve,
		forward:  adjacency.NewBuffer(bufferCfg),
		keyIDs:   keyIDs,
		defaults: defaults,
		aggs:     aggs,
		reader:   cfg.PropertyReader,
	}
	if cfg.IndexInverse {
		im.inverse = adjacency.NewBuffer(bufferCfg)
	}
	return im
}

// release drops everything buffered so far.
func (im *relationshipImporter) release() {
	im.forward.Release()
	if im.inverse != nil {
		im.inverse.Release()
	}
}

// newLocal returns a builder for use by one goroutine.
func (im *relationshipImporter) newLocal() *LocalRelationshipsBuilder {
	width := 1
	if im.cfg.Orientation == Undirected {
		width = 2
	}
	withRefs := len(im.aggs) > 0
	l := &LocalRelationshipsBuilder{
		importer: im,
		buffer:   batch.NewBuffer(im.cfg.BatchSize*width, withRefs),
		forward:  im.forward.NewWriter(),
		width:    width,
		reader:   im.reader,
	}
	if withRefs && l.reader == nil {
		l.inline = &inlineReader{}
		l.reader = l.inline
	}
	if im.inverse != nil {
		l.inverse = im.inverse.NewWriter()
	}
	return l
}

// LocalRelationshipsBuilder resolves, buffers and flushes the relationships
// offered by one producer.
type LocalRelationshipsBuilder struct {
	importer *relationshipImporter
	buffer   *batch.Buffer
	forward  *adjacency.Writer
	inverse  *adjacency.Writer
	width    int

	reader PropertyReader
	inline *inlineReader

	groups  batch.Groups
	columns [][]int64
}

func (l *LocalRelationshipsBuilder) hasRoom() bool {
	return l.buffer.Len()+l.width <= l.buffer.Capacity()
}

// Offer buffers one relationship and reports whether the buffer can take
// another. Relationships with an unknown endpoint fail in validating mode
// and are dropped otherwise.
func (l *LocalRelationshipsBuilder) Offer(rec source.EdgeRecord) (bool, error) {
	im := l.importer
	im.offered.Add(1)
	s := im.resolve(rec.Source)
	t := im.resolve(rec.Target)
	if s == idmap.NotFound || t == idmap.NotFound {
		if im.cfg.ValidateRelationships {
			missing := rec.Source
			if s != idmap.NotFound {
				missing = rec.Target
			}
			return false, qerrors.NewUnresolvedError("relationships.offer", missing)
		}
		im.dropped.Add(1)
		metrics.RelationshipsDroppedTotal.WithLabelValues("unresolved").Inc()
		return l.hasRoom(), nil
	}

	ref := batch.NoRef
	if l.buffer.HasRefs() {
		if l.inline != nil {
			ref = l.inline.add(rec.Properties)
		} else {
			ref = rec.Ref
		}
	}
	l.buffer.AddWithRef(s, t, ref)
	if l.width == 2 {
		l.buffer.AddWithRef(t, s, ref)
	}
	return l.hasRoom(), nil
}

// Flush sorts the buffered relationships and folds them into the adjacency
// buffers.
func (l *LocalRelationshipsBuilder) Flush() error {
	if l.buffer.Len() == 0 {
		return nil
	}
	if l.importer.cfg.Orientation == Reverse {
		l.buffer.SortByTarget()
	} else {
		l.buffer.SortBySource()
	}
	if err := l.write(l.forward); err != nil {
		return err
	}
	if l.inverse != nil {
		l.buffer.SortByTarget()
		if err := l.write(l.inverse); err != nil {
			return err
		}
	}

	l.buffer.Reset()
	if l.inline != nil {
		l.inline.reset()
	}
	metrics.BatchesFlushedTotal.Inc()
	return nil
}

func (l *LocalRelationshipsBuilder) write(w *adjacency.Writer) error {
	l.buffer.Group(&l.groups)
	var columns [][]int64
	if l.buffer.HasRefs() {
		im := l.importer
		values, err := l.reader.ReadProperties(l.groups.Refs, im.keyIDs, im.defaults, im.aggs)
		if err != nil {
			return err
		}
		l.columns = toBits(values, l.columns)
		columns = l.columns
	}
	return w.AddAll(l.groups.Keys, l.groups.Targets, columns, l.groups.Offsets)
}

// Scan drains cursor through Offer, flushing whenever the buffer fills and
// once more when the scan is exhausted.
func (l *LocalRelationshipsBuilder) Scan(ctx context.Context, cursor source.Cursor[source.EdgeRecord]) error {
	flag := concurrency.FromContext(ctx)
	state := batch.Scanning
	for {
		switch state {
		case batch.Scanning:
			if err := concurrency.CheckRunning(flag, "relationships.scan"); err != nil {
				return err
			}
			ok, err := cursor.ReserveBatch(ctx)
			if err != nil {
				return err
			}
			if !ok {
				state = batch.Done
				continue
			}
			complete, err := cursor.ConsumeBatch(l.Offer)
			if err != nil {
				return err
			}
			if !complete || !l.hasRoom() {
				state = batch.BufferFull
			}
		case batch.BufferFull:
			state = batch.Flushing
		case batch.Flushing:
			if err := l.Flush(); err != nil {
				return err
			}
			state = batch.Scanning
		case batch.Done:
			return l.Flush()
		}
	}
}
