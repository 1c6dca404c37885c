package idmap

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/23skdu/quiver/internal/concurrency"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/metrics"
	"github.com/23skdu/quiver/internal/paged"
	"github.com/rs/zerolog"
)

// DefaultLocalBatchSize is the number of nodes a LocalBuilder buffers before
// publishing them.
const DefaultLocalBatchSize = 4096

// BuilderConfig configures a NodesBuilder.
type BuilderConfig struct {
	Type Type
	// Deduplicate drops repeated original ids. Without it every id must be
	// added exactly once.
	Deduplicate bool
	Concurrency int
	BatchSize   int
	Tracker     *memory.Tracker
	Logger      zerolog.Logger
}

type chunk struct {
	start int64
	ids   []int64
}

// NodesBuilder collects node ids and labels from concurrent producers and
// builds an IDMap. Each producer adds nodes through its own LocalBuilder.
type NodesBuilder struct {
	cfg    BuilderConfig
	labels *LabelBuilder

	mu     sync.Mutex
	chunks []chunk

	count    atomic.Int64
	highest  atomic.Int64
	negative atomic.Bool
	open    atomic.Int64
	built   atomic.Bool

	seen    *paged.GrowingBitSet
	sharded *ShardedMap
}

func NewNodesBuilder(cfg BuilderConfig) *NodesBuilder {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = concurrency.DefaultConcurrency()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultLocalBatchSize
	}
	b := &NodesBuilder{
		cfg:    cfg,
		labels: NewLabelBuilder(cfg.Tracker),
	}
	b.highest.Store(NotFound)
	if cfg.Deduplicate {
		switch cfg.Type {
		case Array, Bitmap:
			b.seen = paged.NewGrowingBitSet(cfg.Tracker)
		default:
			b.sharded = NewShardedMap(cfg.Concurrency * 4)
		}
	}
	return b
}

// NewLocal returns a builder for use by a single goroutine. It must be
// closed before Build.
func (b *NodesBuilder) NewLocal() *LocalBuilder {
	b.open.Add(1)
	return &LocalBuilder{builder: b}
}

// NodeCount returns the number of nodes published so far.
func (b *NodesBuilder) NodeCount() int64 {
	return b.count.Load()
}

func (b *NodesBuilder) isNew(original int64) bool {
	switch {
	case b.seen != nil:
		return b.seen.Set(original)
	case b.sharded != nil:
		_, added := b.sharded.Add(original)
		return added
	}
	return true
}

func (b *NodesBuilder) publish(ids []int64, labels [][]string) {
	n := int64(len(ids))
	start := b.count.Add(n) - n

	localMax := NotFound
	for i, id := range ids {
		localMax = max(localMax, id)
		if len(labels[i]) > 0 {
			b.labels.Add(start+int64(i), labels[i]...)
		}
	}
	for {
		current := b.highest.Load()
		if localMax <= current || b.highest.CompareAndSwap(current, localMax) {
			break
		}
	}

	b.mu.Lock()
	b.chunks = append(b.chunks, chunk{start: start, ids: ids})
	b.mu.Unlock()
}

// Build freezes all published nodes into an IDMap. It fails while local
// builders are open and when called twice.
func (b *NodesBuilder) Build(ctx context.Context) (IDMap, error) {
	if open := b.open.Load(); open > 0 {
		return nil, qerrors.NewMisuseError("nodes.build", "local builders still open").
			WithContext("open", open)
	}
	if !b.built.CompareAndSwap(false, true) {
		return nil, qerrors.NewMisuseError("nodes.build", "nodes builder already built")
	}
	started := time.Now()
	if b.seen != nil {
		defer b.seen.Release()
	}

	count := b.count.Load()
	highest := b.highest.Load()
	originals, err := b.collect(ctx, count)
	if err != nil {
		return nil, err
	}

	t := b.cfg.Type
	if t == Auto {
		t = SelectType(count, highest)
		if b.negative.Load() {
			t = HighLimit
		}
	}

	var (
		m      IDMap
		attach func(*LabelInformation)
	)
	switch t {
	case Array:
		sorted, err := b.sortOriginals(ctx, originals)
		if err != nil {
			originals.Release()
			return nil, err
		}
		am, err := NewArrayIDMap(ctx, sorted, highest, b.cfg.Concurrency, b.cfg.Tracker)
		if err != nil {
			sorted.Release()
			originals.Release()
			return nil, err
		}
		m, attach = am, func(info *LabelInformation) { am.labels = info }
	case Bitmap:
		bm, err := NewBitIDMap(ctx, originals, highest, b.cfg.Concurrency, b.cfg.Tracker)
		if err != nil {
			return nil, err
		}
		m, attach = bm, func(info *LabelInformation) { bm.labels = info }
	case HighLimit:
		sharded := b.sharded
		if sharded == nil {
			sharded = NewShardedMap(b.cfg.Concurrency * 4)
			err := concurrency.ParallelRange(ctx, b.cfg.Concurrency, count, func(_ context.Context, start, end int64) error {
				for i := start; i < end; i++ {
					sharded.Add(originals.Get(i))
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
		hm, err := NewHighLimitIDMap(ctx, sharded, b.cfg.Concurrency, b.cfg.Tracker)
		if err != nil {
			return nil, err
		}
		m, attach = hm, hm.setLabels
	default:
		return nil, qerrors.NewValidationError("nodes.build", fmt.Sprintf("unsupported id map type %s", t))
	}

	info, err := b.labels.Build(ctx, b.cfg.Concurrency, m.NodeCount(), func(position int64) int64 {
		return m.ToMapped(originals.Get(position))
	})
	if err != nil {
		return nil, err
	}
	attach(info)
	originals.Release()

	metrics.IDMapNodes.WithLabelValues(t.String()).Set(float64(m.NodeCount()))
	b.cfg.Logger.Info().
		Str("type", t.String()).
		Int64("nodes", m.NodeCount()).
		Int64("highest_original_id", highest).
		Strs("labels", info.Available()).
		Dur("duration", time.Since(started)).
		Msg("Built id map")
	return m, nil
}

// collect copies the published chunks into one paged array by position.
func (b *NodesBuilder) collect(ctx context.Context, count int64) (*paged.Array[int64], error) {
	b.mu.Lock()
	chunks := b.chunks
	b.chunks = nil
	b.mu.Unlock()

	originals := paged.NewArray[int64](count, b.cfg.Tracker)
	tasks := make([]concurrency.Task, len(chunks))
	for i, c := range chunks {
		tasks[i] = func(context.Context) error {
			for j, id := range c.ids {
				originals.Set(c.start+int64(j), id)
			}
			return nil
		}
	}
	if err := concurrency.RunWithConcurrency(ctx, b.cfg.Concurrency, tasks); err != nil {
		originals.Release()
		return nil, err
	}
	return originals, nil
}

// sortOriginals returns the published ids in ascending order. Ids must be
// unique and non negative.
func (b *NodesBuilder) sortOriginals(ctx context.Context, originals *paged.Array[int64]) (*paged.Array[int64], error) {
	seen := b.seen
	if seen == nil {
		seen = paged.NewGrowingBitSet(b.cfg.Tracker)
		defer seen.Release()
		err := concurrency.ParallelRange(ctx, b.cfg.Concurrency, originals.Size(), func(_ context.Context, start, end int64) error {
			for i := start; i < end; i++ {
				if id := originals.Get(i); !seen.Set(id) {
					return qerrors.NewValidationError("nodes.build", "duplicate original id without deduplication").
						WithContext("original_id", id)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sorted := paged.NewArray[int64](originals.Size(), b.cfg.Tracker)
	var next int64
	seen.ForEach(func(id int64) bool {
		sorted.Set(next, id)
		next++
		return true
	})
	return sorted, nil
}

// LocalBuilder buffers nodes of one producer and publishes them in batches.
type LocalBuilder struct {
	builder *NodesBuilder
	ids     []int64
	labels  [][]string
	closed  bool
}

// AddNode adds original with its labels. Repeated ids are skipped when the
// builder deduplicates.
func (l *LocalBuilder) AddNode(original int64, labels ...string) error {
	b := l.builder
	if l.closed {
		return qerrors.NewMisuseError("nodes.add", "local builder closed")
	}
	if original < 0 {
		if b.cfg.Type == Array || b.cfg.Type == Bitmap {
			return qerrors.NewValidationError("nodes.add", "negative original ids require the highlimit id map").
				WithContext("original_id", original)
		}
		b.negative.Store(true)
	}
	if original >= ArrayLimit && (b.cfg.Type == Array || b.cfg.Type == Bitmap) {
		return qerrors.NewCapacityError("nodes.add", original, ArrayLimit-1)
	}
	if !b.isNew(original) {
		return nil
	}
	if l.ids == nil {
		l.ids = make([]int64, 0, b.cfg.BatchSize)
		l.labels = make([][]string, 0, b.cfg.BatchSize)
	}
	l.ids = append(l.ids, original)
	l.labels = append(l.labels, labels)
	if len(l.ids) == b.cfg.BatchSize {
		l.Flush()
	}
	return nil
}

// Flush publishes the buffered nodes.
func (l *LocalBuilder) Flush() {
	if len(l.ids) == 0 {
		return
	}
	l.builder.publish(l.ids, l.labels)
	l.ids, l.labels = nil, nil
}

// Close flushes and detaches the local builder. Closing twice is a no-op.
func (l *LocalBuilder) Close() {
	if l.closed {
		return
	}
	l.Flush()
	l.closed = true
	l.builder.open.Add(-1)
}
