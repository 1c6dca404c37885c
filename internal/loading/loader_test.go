package loading

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/23skdu/quiver/internal/adjacency"
	"github.com/23skdu/quiver/internal/aggregation"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/idmap"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Concurrency = 4
	cfg.BatchSize = 3
	cfg.IDMapType = idmap.Bitmap
	cfg.PageShift = 10
	cfg.Tracker = memory.NewTracker()
	return cfg
}

func nodes(ids ...int64) *source.SliceSource[source.NodeRecord] {
	records := make([]source.NodeRecord, len(ids))
	for i, id := range ids {
		records[i] = source.NodeRecord{ID: id}
	}
	return source.NewSliceSource(records, 2)
}

func edge(s, t int64, props ...any) source.EdgeRecord {
	return source.EdgeRecord{Source: s, Target: t, Ref: source.NoRef, Properties: props}
}

func load(t *testing.T, cfg Config, nodeSource source.ChunkSource[source.NodeRecord], records []source.EdgeRecord, keys ...string) *Graph {
	t.Helper()
	loader, err := NewGraphLoader(cfg)
	require.NoError(t, err)
	g, err := loader.Load(context.Background(), nodeSource, source.NewEdgeSlice(records, keys, 4))
	require.NoError(t, err)
	return g
}

// neighbors returns the original ids of the neighbors of original node n.
func neighbors(g *Graph, n int64) []int64 {
	m := g.IDMap()
	c := g.AdjacencyCursor(m.ToMapped(n))
	var out []int64
	for c.HasNext() {
		out = append(out, m.ToOriginal(c.Next()))
	}
	return out
}

func inverseNeighbors(t *testing.T, g *Graph, n int64) []int64 {
	m := g.IDMap()
	c, err := g.InverseAdjacencyCursor(m.ToMapped(n))
	require.NoError(t, err)
	var out []int64
	for c.HasNext() {
		out = append(out, m.ToOriginal(c.Next()))
	}
	return out
}

func values(t *testing.T, g *Graph, key string, n int64) []float64 {
	c, err := g.PropertyCursor(key, g.IDMap().ToMapped(n))
	require.NoError(t, err)
	var out []float64
	for c.HasNext() {
		out = append(out, c.Next())
	}
	return out
}

func TestLoad_DropsDanglingRelationshipsInLenientMode(t *testing.T) {
	g := load(t, testConfig(), nodes(9), []source.EdgeRecord{edge(5, 9)})

	assert.Equal(t, int64(1), g.NodeCount())
	assert.Equal(t, int64(1), g.DroppedRelationships())
	assert.Equal(t, int64(0), g.RelationshipCount())
	assert.Equal(t, 0, g.Degree(g.IDMap().ToMapped(9)))
}

func TestLoad_ValidatingModeFailsOnUnknownNode(t *testing.T) {
	cfg := testConfig()
	cfg.ValidateRelationships = true
	loader, err := NewGraphLoader(cfg)
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), nodes(9), source.NewEdgeSlice([]source.EdgeRecord{edge(9, 5)}, nil, 4))
	require.Error(t, err)
	assert.ErrorIs(t, err, qerrors.ErrUnresolvedNode)
	assert.Contains(t, err.Error(), "5")
}

func TestLoad_SumAggregation(t *testing.T) {
	cfg := testConfig()
	cfg.Properties = []PropertyMapping{{Key: "weight", Aggregation: aggregation.Sum}}
	g := load(t, cfg, nodes(1, 7), []source.EdgeRecord{
		edge(1, 7, 1.0),
		edge(1, 7, 2.0),
		edge(1, 7, 3.0),
	}, "weight")

	assert.Equal(t, []int64{7}, neighbors(g, 1))
	assert.Equal(t, []float64{6}, values(t, g, "weight", 1))
	assert.Equal(t, int64(1), g.RelationshipCount())
}

func TestLoad_Orientations(t *testing.T) {
	records := []source.EdgeRecord{edge(0, 1), edge(0, 2), edge(1, 2)}
	tests := []struct {
		orientation   Orientation
		expected      map[int64][]int64
		relationships int64
	}{
		{Natural, map[int64][]int64{0: {1, 2}, 1: {2}, 2: nil}, 3},
		{Reverse, map[int64][]int64{0: nil, 1: {0}, 2: {0, 1}}, 3},
		{Undirected, map[int64][]int64{0: {1, 2}, 1: {0, 2}, 2: {0, 1}}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.orientation.String(), func(t *testing.T) {
			cfg := testConfig()
			cfg.Orientation = tt.orientation
			g := load(t, cfg, nodes(0, 1, 2), records)

			assert.Equal(t, tt.orientation, g.Orientation())
			assert.Equal(t, tt.relationships, g.RelationshipCount())
			for n, want := range tt.expected {
				assert.Equal(t, want, neighbors(g, n), "node %d", n)
				assert.Equal(t, len(want), g.Degree(g.IDMap().ToMapped(n)))
			}
		})
	}
}

func TestLoad_IndexInverse(t *testing.T) {
	cfg := testConfig()
	cfg.IndexInverse = true
	cfg.Properties = []PropertyMapping{{Key: "w", DefaultValue: 9}}
	g := load(t, cfg, nodes(0, 1, 2), []source.EdgeRecord{
		edge(0, 2, 1.5),
		edge(1, 2, 2.5),
		edge(0, 1),
	}, "w")

	require.True(t, g.HasInverse())
	assert.Equal(t, []int64{1, 2}, neighbors(g, 0))
	assert.Equal(t, []float64{9, 1.5}, values(t, g, "w", 0))
	assert.Equal(t, []int64{0, 1}, inverseNeighbors(t, g, 2))

	degree, err := g.InverseDegree(g.IDMap().ToMapped(2))
	require.NoError(t, err)
	assert.Equal(t, 2, degree)

	c, err := g.InversePropertyCursor("w", g.IDMap().ToMapped(2))
	require.NoError(t, err)
	assert.Equal(t, 1.5, c.Next())
	assert.Equal(t, 2.5, c.Next())
	assert.False(t, c.HasNext())
}

func TestLoad_WithoutInverseIndex(t *testing.T) {
	g := load(t, testConfig(), nodes(0, 1), []source.EdgeRecord{edge(0, 1)})

	assert.False(t, g.HasInverse())
	_, err := g.InverseAdjacencyCursor(0)
	assert.ErrorIs(t, err, qerrors.ErrBuildMisuse)
	_, err = g.InverseDegree(0)
	assert.ErrorIs(t, err, qerrors.ErrBuildMisuse)
	_, err = g.PropertyCursor("missing", 0)
	assert.ErrorIs(t, err, qerrors.ErrInvalidConfig)
}

func TestLoad_CountAggregation(t *testing.T) {
	cfg := testConfig()
	cfg.Properties = []PropertyMapping{{Key: "n", Aggregation: aggregation.Count}}
	g := load(t, cfg, nodes(0, 1, 2), []source.EdgeRecord{
		edge(0, 1, 4.0),
		edge(0, 2),
		edge(0, 1, 7.0),
		edge(0, 1),
	}, "n")

	assert.Equal(t, []int64{1, 2}, neighbors(g, 0))
	assert.Equal(t, []float64{3, 1}, values(t, g, "n", 0))
}

func TestLoad_TopologyAggregation(t *testing.T) {
	records := []source.EdgeRecord{edge(0, 1), edge(0, 1), edge(0, 1), edge(0, 2)}

	cfg := testConfig()
	g := load(t, cfg, nodes(0, 1, 2), records)
	assert.Equal(t, []int64{1, 1, 1, 2}, neighbors(g, 0))

	cfg = testConfig()
	cfg.Aggregation = aggregation.Single
	g = load(t, cfg, nodes(0, 1, 2), records)
	assert.Equal(t, []int64{1, 2}, neighbors(g, 0))
	assert.Equal(t, int64(2), g.RelationshipCount())
}

func TestLoad_InheritsRelationshipAggregation(t *testing.T) {
	cfg := testConfig()
	cfg.Aggregation = aggregation.Max
	cfg.Properties = []PropertyMapping{{Key: "a"}, {Key: "b", Aggregation: aggregation.Min}}
	g := load(t, cfg, nodes(0, 1), []source.EdgeRecord{
		edge(0, 1, 1, 5),
		edge(0, 1, 3, 2),
		edge(0, 1, 2, 4),
	}, "a", "b")

	assert.Equal(t, []float64{3}, values(t, g, "a", 0))
	assert.Equal(t, []float64{2}, values(t, g, "b", 0))
}

func TestLoad_MalformedPropertyFails(t *testing.T) {
	cfg := testConfig()
	cfg.Properties = []PropertyMapping{{Key: "w"}}
	loader, err := NewGraphLoader(cfg)
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), nodes(0, 1),
		source.NewEdgeSlice([]source.EdgeRecord{edge(0, 1, "heavy")}, []string{"w"}, 4))
	assert.ErrorIs(t, err, qerrors.ErrMalformedProperty)
}

func TestLoad_CancelledContext(t *testing.T) {
	loader, err := NewGraphLoader(testConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = loader.Load(ctx, nodes(0, 1), source.NewEdgeSlice([]source.EdgeRecord{edge(0, 1)}, nil, 4))
	assert.ErrorIs(t, err, qerrors.ErrTerminated)
}

func TestLoad_RequiresRelationshipSource(t *testing.T) {
	loader, err := NewGraphLoader(testConfig())
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), nodes(0), nil)
	assert.ErrorIs(t, err, qerrors.ErrInvalidConfig)
}

func TestLoad_ExternalPropertyReader(t *testing.T) {
	cfg := testConfig()
	cfg.Properties = []PropertyMapping{{Key: "score"}}
	cfg.PropertyReader = SyntheticReader{Value: func(ref int64, key int) float64 {
		return float64(ref*10 + int64(key))
	}}
	records := []source.EdgeRecord{
		{Source: 0, Target: 1, Ref: 4},
		{Source: 0, Target: 2, Ref: 7},
	}
	g := load(t, cfg, nodes(0, 1, 2), records, "score")

	assert.Equal(t, []float64{40, 70}, values(t, g, "score", 0))
}

func TestLoad_ExternalReaderCountsParallelRelationships(t *testing.T) {
	cfg := testConfig()
	cfg.Properties = []PropertyMapping{{Key: "n", Aggregation: aggregation.Count}}
	cfg.PropertyReader = SyntheticReader{Value: func(int64, int) float64 { return 5 }}
	records := []source.EdgeRecord{
		{Source: 0, Target: 1, Ref: 0},
		{Source: 0, Target: 1, Ref: 1},
		{Source: 0, Target: 2, Ref: 2},
	}
	g := load(t, cfg, nodes(0, 1, 2), records, "n")

	assert.Equal(t, []float64{2, 1}, values(t, g, "n", 0))
}

func TestLoad_RandomGraphMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const nodeCount = 2_000
	ids := make([]int64, nodeCount)
	for i := range ids {
		ids[i] = int64(i) * 7
	}

	var records []source.EdgeRecord
	expected := make(map[int64][]int64)
	for range 20_000 {
		s, t := ids[rng.Intn(nodeCount)], ids[rng.Intn(nodeCount)]
		records = append(records, edge(s, t))
		expected[s] = append(expected[s], t)
	}

	for _, compression := range []adjacency.Compression{adjacency.VarLong, adjacency.Packed, adjacency.Uncompressed} {
		t.Run(compression.String(), func(t *testing.T) {
			cfg := testConfig()
			cfg.BatchSize = 128
			cfg.Compression = compression
			cfg.IDMapType = idmap.Auto
			loader, err := NewGraphLoader(cfg)
			require.NoError(t, err)
			g, err := loader.Load(context.Background(),
				source.NewSliceSource(nodeRecords(ids), 100),
				source.NewEdgeSlice(records, nil, 500))
			require.NoError(t, err)
			defer g.Release()

			assert.Equal(t, int64(len(records)), g.RelationshipCount())
			for _, n := range ids {
				want := slices.Clone(expected[n])
				slices.Sort(want)
				got := neighbors(g, n)
				slices.Sort(got)
				require.Equal(t, want, got, "node %d", n)
			}
			assert.Positive(t, cfg.Tracker.Peak())
		})
	}
}

func nodeRecords(ids []int64) []source.NodeRecord {
	out := make([]source.NodeRecord, len(ids))
	for i, id := range ids {
		out[i] = source.NodeRecord{ID: id}
	}
	return out
}

func TestLoad_WithoutNodeSourceDiscoversNodes(t *testing.T) {
	big := int64(1) << 50
	g := load(t, testConfig(), nil, []source.EdgeRecord{
		edge(big, -3),
		edge(-3, 11),
		edge(big, 11),
	})

	assert.Equal(t, idmap.HighLimit, g.IDMap().Type())
	assert.Equal(t, int64(3), g.NodeCount())
	assert.Equal(t, []int64{-3, 11}, neighbors(g, big))
	assert.Equal(t, []int64{11}, neighbors(g, -3))
}

func TestLoad_NegativeNodeIDsSelectHighLimit(t *testing.T) {
	cfg := testConfig()
	cfg.IDMapType = idmap.Auto
	cfg.ValidateRelationships = true
	g := load(t, cfg, nodes(-3, 4), []source.EdgeRecord{edge(-3, 4), edge(4, -3)})

	assert.Equal(t, idmap.HighLimit, g.IDMap().Type())
	assert.Equal(t, int64(2), g.NodeCount())
	assert.Equal(t, []int64{4}, neighbors(g, -3))
	assert.Equal(t, []int64{-3}, neighbors(g, 4))
}

func TestLoad_ArrayIDMapAscends(t *testing.T) {
	cfg := testConfig()
	cfg.IDMapType = idmap.Array
	g := load(t, cfg, nodes(50, 10, 40, 20, 30, 0, 70, 60), []source.EdgeRecord{edge(70, 0)})

	m := g.IDMap()
	originals := make([]int64, m.NodeCount())
	for i := range originals {
		originals[i] = m.ToOriginal(int64(i))
	}
	assert.True(t, slices.IsSorted(originals), "%v", originals)
	assert.Equal(t, []int64{0}, neighbors(g, 70))
}

func TestStreamImporter_ConcurrentLocalBuilders(t *testing.T) {
	cfg := testConfig()
	cfg.Properties = []PropertyMapping{{Key: "w", Aggregation: aggregation.Sum}}
	s, err := NewStreamImporter(cfg, []string{"w"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := s.NewLocal()
			for i := range 100 {
				more, err := local.Offer(edge(int64(1_000+w), int64(i%10)*1_000_000, 1.0))
				assert.NoError(t, err)
				if !more {
					assert.NoError(t, local.Flush())
				}
			}
			assert.NoError(t, local.Flush())
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(14), s.NodeCount())

	g, err := s.Build(context.Background())
	require.NoError(t, err)
	for w := range 4 {
		src := int64(1_000 + w)
		assert.Equal(t, []int64{0, 1_000_000, 2_000_000, 3_000_000, 4_000_000, 5_000_000, 6_000_000, 7_000_000, 8_000_000, 9_000_000}, neighbors(g, src))
		assert.Equal(t, slices.Repeat([]float64{10}, 10), values(t, g, "w", src))
	}

	_, err = s.Build(context.Background())
	assert.ErrorIs(t, err, qerrors.ErrBuildMisuse)
}

func TestLocalRelationshipsBuilder_UndirectedTakesTwoSlots(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 2
	cfg.Orientation = Undirected
	s, err := NewStreamImporter(cfg, nil)
	require.NoError(t, err)
	local := s.NewLocal()

	more, err := local.Offer(edge(1, 2))
	require.NoError(t, err)
	assert.True(t, more)
	more, err = local.Offer(edge(2, 3))
	require.NoError(t, err)
	assert.False(t, more)
	require.NoError(t, local.Flush())

	g, err := s.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), g.RelationshipCount())
	assert.Equal(t, []int64{1, 3}, neighbors(g, 2))
}

func TestSubgraph_FiltersByLabel(t *testing.T) {
	cfg := testConfig()
	labeled := source.NewSliceSource([]source.NodeRecord{
		{ID: 0, Labels: []string{"A"}},
		{ID: 1, Labels: []string{"B"}},
		{ID: 2, Labels: []string{"A"}},
		{ID: 3, Labels: []string{"A", "B"}},
	}, 2)
	g := load(t, cfg, labeled, []source.EdgeRecord{edge(0, 1), edge(0, 2), edge(0, 3), edge(2, 3), edge(1, 0)})

	sub, err := g.WithFilteredLabels([]string{"A"})
	require.NoError(t, err)
	m := sub.IDMap()
	assert.Equal(t, int64(3), sub.NodeCount())

	var got []int64
	sub.ForEachNeighbor(m.ToMapped(0), func(target int64) bool {
		got = append(got, m.ToOriginal(target))
		return true
	})
	assert.Equal(t, []int64{2, 3}, got)
	assert.Equal(t, 1, sub.Degree(m.ToMapped(2)))
	assert.Equal(t, idmap.NotFound, m.ToMapped(1))

	all, err := g.WithFilteredLabels([]string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.NodeCount())
	assert.Equal(t, 3, all.Degree(g.IDMap().ToMapped(0)))

	_, err = g.WithFilteredLabels([]string{"C"})
	assert.ErrorIs(t, err, qerrors.ErrInvalidConfig)
}

func ExampleGraphLoader_Load() {
	cfg := DefaultConfig()
	cfg.Properties = []PropertyMapping{{Key: "weight", Aggregation: aggregation.Sum}}
	loader, _ := NewGraphLoader(cfg)

	nodeSource := source.NewSliceSource([]source.NodeRecord{{ID: 1}, {ID: 7}}, 10)
	edges := source.NewEdgeSlice([]source.EdgeRecord{
		{Source: 1, Target: 7, Ref: source.NoRef, Properties: []any{1.0}},
		{Source: 1, Target: 7, Ref: source.NoRef, Properties: []any{2.0}},
	}, []string{"weight"}, 10)
	g, _ := loader.Load(context.Background(), nodeSource, edges)

	node := g.IDMap().ToMapped(1)
	weights, _ := g.PropertyCursor("weight", node)
	fmt.Println(g.Degree(node), weights.Next())
	// Output: 1 3
}
