// Package aggregation merges parallel relationships, that is relationships
// sharing source and target, according to a per-property policy.
package aggregation

import (
	"fmt"
	"math"
	"strings"
)

// Aggregation is the merge policy of one relationship property.
type Aggregation int

const (
	// Default resolves to None.
	Default Aggregation = iota
	// None keeps every parallel relationship.
	None
	// Single keeps the first relationship.
	Single
	Sum
	Min
	Max
	// Count replaces the property with the number of parallel relationships.
	Count
)

// Mark flags a target position merged away during aggregation. It never
// occurs as a node id.
const Mark int64 = math.MinInt64

var names = map[Aggregation]string{
	Default: "DEFAULT",
	None:    "NONE",
	Single:  "SINGLE",
	Sum:     "SUM",
	Min:     "MIN",
	Max:     "MAX",
	Count:   "COUNT",
}

func (a Aggregation) String() string {
	if n, ok := names[a]; ok {
		return n
	}
	return fmt.Sprintf("Aggregation(%d)", int(a))
}

// Parse reads an aggregation name case-insensitively.
func Parse(s string) (Aggregation, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if upper == "" {
		return Default, nil
	}
	for a, n := range names {
		if n == upper {
			return a, nil
		}
	}
	return Default, fmt.Errorf("unknown aggregation %q", s)
}

// Decode implements envconfig.Decoder.
func (a *Aggregation) Decode(value string) error {
	parsed, err := Parse(value)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Resolve maps Default to None.
func (a Aggregation) Resolve() Aggregation {
	if a == Default {
		return None
	}
	return a
}

// Merges reports whether the policy collapses parallel relationships.
func (a Aggregation) Merges() bool {
	return a.Resolve() != None
}

// Merge combines the running value with the value of a parallel
// relationship. Count expects every input to be one.
func (a Aggregation) Merge(running, next float64) float64 {
	switch a {
	case Sum, Count:
		return running + next
	case Min:
		return math.Min(running, next)
	case Max:
		return math.Max(running, next)
	default:
		return running
	}
}

// AnyMerges reports whether at least one policy collapses parallel
// relationships.
func AnyMerges(aggregations []Aggregation) bool {
	for _, a := range aggregations {
		if a.Merges() {
			return true
		}
	}
	return false
}
