// Package loading orchestrates graph construction: concurrent ingestion of
// node and relationship records into the id map and adjacency buffers,
// followed by a flush phase that compresses every buffered list into its
// final CSR form.
package loading

import (
	"fmt"
	"strings"

	"github.com/23skdu/quiver/internal/adjacency"
	"github.com/23skdu/quiver/internal/aggregation"
	"github.com/23skdu/quiver/internal/concurrency"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/idmap"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/rs/zerolog"
)

// Orientation selects which endpoint keys the adjacency list.
type Orientation int

const (
	// Natural keys relationships by source.
	Natural Orientation = iota
	// Reverse keys relationships by target.
	Reverse
	// Undirected stores every relationship under both endpoints.
	Undirected
)

func (o Orientation) String() string {
	switch o {
	case Natural:
		return "natural"
	case Reverse:
		return "reverse"
	case Undirected:
		return "undirected"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// ParseOrientation reads an orientation name case insensitively.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "natural":
		return Natural, nil
	case "reverse":
		return Reverse, nil
	case "undirected":
		return Undirected, nil
	}
	return Natural, qerrors.NewValidationError("config.orientation", fmt.Sprintf("unknown orientation %q", s))
}

// Decode implements envconfig.Decoder.
func (o *Orientation) Decode(value string) error {
	parsed, err := ParseOrientation(value)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// PropertyMapping loads one relationship property.
type PropertyMapping struct {
	// Key names the property in the record source.
	Key          string
	DefaultValue float64
	// Aggregation merges values of parallel relationships. Default inherits
	// the relationship level aggregation.
	Aggregation aggregation.Aggregation
}

// Config configures graph loading.
type Config struct {
	Concurrency int                   `envconfig:"CONCURRENCY"`
	BatchSize   int                   `envconfig:"BATCH_SIZE" default:"10000"`
	Orientation Orientation           `envconfig:"ORIENTATION" default:"natural"`
	Compression adjacency.Compression `envconfig:"COMPRESSION" default:"varlong"`
	IDMapType   idmap.Type            `envconfig:"IDMAP_TYPE" default:"auto"`
	// ValidateRelationships fails the load on relationships whose endpoints
	// are not in the id map. Otherwise such relationships are dropped.
	ValidateRelationships bool `envconfig:"VALIDATE_RELATIONSHIPS" default:"false"`
	// IndexInverse builds a second adjacency list keyed by the other endpoint.
	IndexInverse     bool `envconfig:"INDEX_INVERSE" default:"false"`
	DeduplicateNodes bool `envconfig:"DEDUPLICATE_NODES" default:"true"`
	// Aggregation applies to the topology and to properties with Default
	// aggregation. Any merging aggregation collapses parallel relationships.
	Aggregation  aggregation.Aggregation `envconfig:"AGGREGATION" default:"none"`
	PreAggregate bool                    `envconfig:"PRE_AGGREGATE" default:"true"`
	PageShift    int                     `envconfig:"PAGE_SHIFT" default:"18"`

	Properties     []PropertyMapping `ignored:"true"`
	PropertyReader PropertyReader    `ignored:"true"`
	Tracker        *memory.Tracker   `ignored:"true"`
	Logger         zerolog.Logger    `ignored:"true"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		BatchSize:        10_000,
		Orientation:      Natural,
		Compression:      adjacency.VarLong,
		IDMapType:        idmap.Auto,
		DeduplicateNodes: true,
		Aggregation:      aggregation.None,
		PreAggregate:     true,
		PageShift:        memory.DefaultPageShift,
		Logger:           zerolog.Nop(),
	}
}

// Validate checks the configuration and fills in derived defaults.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return qerrors.NewValidationError("config.validate", "concurrency must not be negative").
			WithContext("concurrency", c.Concurrency)
	}
	if c.BatchSize < 1 {
		return qerrors.NewValidationError("config.validate", "batch size must be positive").
			WithContext("batch_size", c.BatchSize)
	}
	if c.PageShift < memory.MinPageShift || c.PageShift > memory.MaxPageShift {
		return qerrors.NewValidationError("config.validate", "page shift out of range").
			WithContext("page_shift", c.PageShift).
			WithContext("min", memory.MinPageShift).
			WithContext("max", memory.MaxPageShift)
	}
	if c.Orientation == Undirected && c.IndexInverse {
		return qerrors.NewValidationError("config.validate", "undirected relationships have no inverse index")
	}

	seen := make(map[string]bool, len(c.Properties))
	for _, p := range c.Properties {
		if p.Key == "" {
			return qerrors.NewValidationError("config.validate", "property mapping without key")
		}
		if seen[p.Key] {
			return qerrors.NewValidationError("config.validate", fmt.Sprintf("duplicate property mapping %q", p.Key))
		}
		seen[p.Key] = true
	}

	aggs := c.aggregations()
	if len(aggs) > 0 && aggregation.AnyMerges(aggs) {
		for i, a := range aggs {
			if !a.Merges() {
				return qerrors.NewValidationError("config.validate",
					"conflicting relationship property aggregations, NONE cannot be combined with merging aggregations").
					WithContext("property", c.Properties[i].Key)
			}
		}
	}
	return nil
}

// aggregations returns the resolved aggregation of every property mapping.
func (c *Config) aggregations() []aggregation.Aggregation {
	aggs := make([]aggregation.Aggregation, len(c.Properties))
	for i, p := range c.Properties {
		a := p.Aggregation
		if a == aggregation.Default {
			a = c.Aggregation
		}
		aggs[i] = a.Resolve()
	}
	return aggs
}

// deduplicateTopology reports whether parallel relationships without
// properties collapse into one.
func (c *Config) deduplicateTopology() bool {
	return len(c.Properties) == 0 && c.Aggregation.Merges()
}

func (c *Config) workers() int {
	if c.Concurrency < 1 {
		return concurrency.DefaultConcurrency()
	}
	return c.Concurrency
}
