package adjacency

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/23skdu/quiver/internal/aggregation"
	"github.com/23skdu/quiver/internal/codec"
	"github.com/23skdu/quiver/internal/concurrency"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/metrics"
)

// BufferConfig configures an adjacency Buffer.
type BufferConfig struct {
	Sizing        ImportSizing
	PropertyCount int
	// Aggregations holds one policy per property column.
	Aggregations []aggregation.Aggregation
	// PreAggregate merges parallel relationships of a batch before they are
	// appended, which bounds buffer growth for heavily duplicated input.
	PreAggregate bool
	Tracker      *memory.Tracker
}

// Buffer accumulates relationships during ingestion. It is partitioned into
// pages; each page is written by whichever Writer holds its lock.
type Buffer struct {
	paging        Paging
	pages         []*ChunkedAdjacencyLists
	locks         []concurrency.PageLock
	propertyCount int
	aggregations  []aggregation.Aggregation
	preAggregate  bool
	counts        bool
}

func NewBuffer(cfg BufferConfig) *Buffer {
	paging := cfg.Sizing.Paging()
	pages := make([]*ChunkedAdjacencyLists, paging.PageCount())
	for i := range pages {
		pages[i] = NewChunkedAdjacencyLists(cfg.PropertyCount, cfg.Tracker)
	}
	counts := false
	for _, a := range cfg.Aggregations {
		counts = counts || a == aggregation.Count
	}
	return &Buffer{
		paging:        paging,
		pages:         pages,
		locks:         make([]concurrency.PageLock, len(pages)),
		propertyCount: cfg.PropertyCount,
		aggregations:  cfg.Aggregations,
		preAggregate:  cfg.PreAggregate && cfg.PropertyCount > 0 && aggregation.AnyMerges(cfg.Aggregations),
		counts:        counts,
	}
}

// Paging returns the id to page mapping of the buffer.
func (b *Buffer) Paging() Paging {
	return b.paging
}

// NewWriter returns a writer for use by one goroutine.
func (b *Buffer) NewWriter() *Writer {
	return &Writer{
		buffer:  b,
		owner:   concurrency.NewOwner(),
		locked:  -1,
		columns: make([][]int64, b.propertyCount),
	}
}

// Writer appends grouped batches to a Buffer. It holds at most one page lock
// at a time and switches locks when consecutive nodes fall on different pages.
type Writer struct {
	buffer     *Buffer
	owner      uint64
	locked     int
	aggregator aggregation.Aggregator
	columns    [][]int64
}

// AddAll appends one batch grouped by key node: the targets of keys[i] are
// targets[offsets[i]:offsets[i+1]] and properties holds one column of float64
// bit patterns per property, parallel to targets. Keys must be ascending so
// each page lock is taken once per batch. All locks are released on return.
func (w *Writer) AddAll(keys []int64, targets []int64, properties [][]int64, offsets []int) error {
	defer w.release()

	b := w.buffer
	if b.counts {
		for c, column := range properties {
			if c < len(b.aggregations) && b.aggregations[c] == aggregation.Count {
				one := int64(math.Float64bits(1))
				for i := range column {
					column[i] = one
				}
			}
		}
	}

	for i, key := range keys {
		page := b.paging.PageID(key)
		if !b.locks[page].IsLockedBy(w.owner) {
			w.release()
			b.locks[page].Lock(w.owner)
			w.locked = page
		}

		start, end := offsets[i], offsets[i+1]
		groupTargets := targets[start:end]
		for c := range w.columns {
			w.columns[c] = properties[c][start:end]
		}
		if b.preAggregate {
			w.aggregator.Aggregate(groupTargets, w.columns, b.aggregations, true)
		}
		if err := b.pages[page].Add(b.paging.LocalID(key), groupTargets, w.columns); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) release() {
	if w.locked >= 0 {
		w.buffer.locks[w.locked].Unlock()
		w.locked = -1
	}
}

// FlushTasks returns one task per page that decodes every accumulated list,
// maps ids through mapper, and compresses the list through a compressor of
// factory. mapper is applied to both source and target ids; nil keeps ids.
func (b *Buffer) FlushTasks(factory *CompressorFactory, mapper codec.ValueMapper) []concurrency.Task {
	tasks := make([]concurrency.Task, len(b.pages))
	for p := range b.pages {
		tasks[p] = func(ctx context.Context) error {
			return b.flushPage(ctx, p, factory, mapper)
		}
	}
	return tasks
}

func (b *Buffer) flushPage(ctx context.Context, p int, factory *CompressorFactory, mapper codec.ValueMapper) error {
	if err := concurrency.CheckRunning(concurrency.FromContext(ctx), "adjacency.flush"); err != nil {
		b.pages[p].Consume(func(int64, []byte, [][]int64, int) error { return err })
		return err
	}
	start := time.Now()
	defer func() {
		metrics.FlushDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	compressor, err := factory.NewCompressor()
	if err != nil {
		b.pages[p].Consume(func(int64, []byte, [][]int64, int) error { return err })
		return err
	}
	defer compressor.Close()

	var scratch []int64
	return b.pages[p].Consume(func(local int64, encoded []byte, properties [][]int64, length int) error {
		if cap(scratch) < length {
			scratch = make([]int64, nextPowerOfTwoInt(length))
		}
		targets := scratch[:length]
		if _, err := codec.DecodeZigZagPrefixSum(encoded, targets, mapper); err != nil {
			return err
		}
		node := b.paging.NodeID(p, local)
		if mapper != nil {
			node = mapper(node)
		}
		_, err := compressor.Compress(node, targets, properties)
		return err
	})
}

// Release drops every accumulated list without compressing it. The buffer
// must not be written or flushed afterwards.
func (b *Buffer) Release() {
	for _, page := range b.pages {
		_ = page.Consume(func(int64, []byte, [][]int64, int) error { return errReleased })
	}
}

var errReleased = errors.New("adjacency buffer released")
