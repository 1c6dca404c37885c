package batch

// Groups is a sorted batch split per key node: the targets of Keys[i] are
// Targets[Offsets[i]:Offsets[i+1]], with their property references at the
// same positions of Refs.
type Groups struct {
	Keys    []int64
	Offsets []int
	Targets []int64
	Refs    []int64
	Count   int
}

// Group computes node boundaries of the sorted buffer into g, reusing g's
// slices. A boundary is emitted whenever the key changes.
func (b *Buffer) Group(g *Groups) {
	n := b.length
	g.Keys = g.Keys[:0]
	g.Offsets = g.Offsets[:0]
	if cap(g.Targets) < n {
		g.Targets = make([]int64, n)
	}
	g.Targets = g.Targets[:n]
	if b.refs != nil {
		if cap(g.Refs) < n {
			g.Refs = make([]int64, n)
		}
		g.Refs = g.Refs[:n]
		copy(g.Refs, b.refs[:n])
	} else {
		g.Refs = nil
	}

	prev := int64(-1)
	for i := 0; i < n; i++ {
		key := b.pairs[2*i]
		if i == 0 || key != prev {
			g.Keys = append(g.Keys, key)
			g.Offsets = append(g.Offsets, i)
			prev = key
		}
		g.Targets[i] = b.pairs[2*i+1]
	}
	g.Offsets = append(g.Offsets, n)
	g.Count = len(g.Keys)
}

// TargetsOf returns the targets of group i.
func (g *Groups) TargetsOf(i int) []int64 {
	return g.Targets[g.Offsets[i]:g.Offsets[i+1]]
}
