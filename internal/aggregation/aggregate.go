package aggregation

import (
	"cmp"
	"math"
	"slices"
)

// Aggregator sorts one node's targets together with their property columns
// and collapses runs of equal targets. It keeps scratch buffers between calls
// and is not safe for concurrent use.
type Aggregator struct {
	order   []int
	scratch []int64
}

// Aggregate sorts targets ascending, permuting every property column in
// lock-step. When merge is set, each run of equal targets keeps its first
// position: the properties of the other positions are merged into it with the
// column's policy and their targets are overwritten with Mark. It returns the
// number of distinct surviving targets. Property values are float64 bit
// patterns.
func (a *Aggregator) Aggregate(targets []int64, properties [][]int64, aggregations []Aggregation, merge bool) int {
	n := len(targets)
	if n <= 1 {
		return n
	}
	if !slices.IsSorted(targets) {
		a.sort(targets, properties)
	}
	if !merge {
		return n
	}

	distinct := 1
	head := 0
	for i := 1; i < n; i++ {
		if targets[i] != targets[head] {
			head = i
			distinct++
			continue
		}
		for c, column := range properties {
			agg := None
			if c < len(aggregations) {
				agg = aggregations[c].Resolve()
			}
			merged := agg.Merge(math.Float64frombits(uint64(column[head])), math.Float64frombits(uint64(column[i])))
			column[head] = int64(math.Float64bits(merged))
		}
		targets[i] = Mark
	}
	return distinct
}

func (a *Aggregator) sort(targets []int64, properties [][]int64) {
	n := len(targets)
	if cap(a.order) < n {
		a.order = make([]int, n)
		a.scratch = make([]int64, n)
	}
	order := a.order[:n]
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(x, y int) int {
		return cmp.Compare(targets[x], targets[y])
	})

	scratch := a.scratch[:n]
	permute(targets, order, scratch)
	for _, column := range properties {
		permute(column[:n], order, scratch)
	}
}

func permute(values []int64, order []int, scratch []int64) {
	for i, src := range order {
		scratch[i] = values[src]
	}
	copy(values, scratch)
}

// Compact removes Mark positions from targets and the property columns,
// keeping order, and returns the new length.
func Compact(targets []int64, properties [][]int64) int {
	out := 0
	for i, t := range targets {
		if t == Mark {
			continue
		}
		if out != i {
			targets[out] = t
			for _, column := range properties {
				column[out] = column[i]
			}
		}
		out++
	}
	return out
}
