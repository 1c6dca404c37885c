package loading

import (
	"testing"

	"github.com/23skdu/quiver/internal/adjacency"
	"github.com/23skdu/quiver/internal/aggregation"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/idmap"
	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }, false},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, false},
		{"page shift too small", func(c *Config) { c.PageShift = 2 }, false},
		{"page shift too large", func(c *Config) { c.PageShift = 40 }, false},
		{"undirected inverse", func(c *Config) {
			c.Orientation = Undirected
			c.IndexInverse = true
		}, false},
		{"reverse inverse", func(c *Config) {
			c.Orientation = Reverse
			c.IndexInverse = true
		}, true},
		{"empty property key", func(c *Config) {
			c.Properties = []PropertyMapping{{Key: ""}}
		}, false},
		{"duplicate property key", func(c *Config) {
			c.Properties = []PropertyMapping{{Key: "w"}, {Key: "w"}}
		}, false},
		{"none mixed with sum", func(c *Config) {
			c.Properties = []PropertyMapping{{Key: "a", Aggregation: aggregation.None}, {Key: "b", Aggregation: aggregation.Sum}}
		}, false},
		{"default inherits merging aggregation", func(c *Config) {
			c.Aggregation = aggregation.Sum
			c.Properties = []PropertyMapping{{Key: "a"}, {Key: "b", Aggregation: aggregation.Max}}
		}, true},
		{"default resolving to none mixed with max", func(c *Config) {
			c.Properties = []PropertyMapping{{Key: "a"}, {Key: "b", Aggregation: aggregation.Max}}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, qerrors.ErrInvalidConfig)
		})
	}
}

func TestConfig_Environment(t *testing.T) {
	t.Setenv("QUIVER_CONCURRENCY", "3")
	t.Setenv("QUIVER_ORIENTATION", "Undirected")
	t.Setenv("QUIVER_COMPRESSION", "packed")
	t.Setenv("QUIVER_IDMAP_TYPE", "highlimit")
	t.Setenv("QUIVER_AGGREGATION", "count")
	t.Setenv("QUIVER_VALIDATE_RELATIONSHIPS", "true")

	cfg := DefaultConfig()
	require.NoError(t, envconfig.Process("quiver", &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, Undirected, cfg.Orientation)
	assert.Equal(t, adjacency.Packed, cfg.Compression)
	assert.Equal(t, idmap.HighLimit, cfg.IDMapType)
	assert.Equal(t, aggregation.Count, cfg.Aggregation)
	assert.True(t, cfg.ValidateRelationships)
	assert.True(t, cfg.DeduplicateNodes)
	assert.Equal(t, 10_000, cfg.BatchSize)
}

func TestConfig_EnvironmentRejectsUnknownOrientation(t *testing.T) {
	t.Setenv("QUIVER_ORIENTATION", "sideways")
	cfg := DefaultConfig()
	assert.Error(t, envconfig.Process("quiver", &cfg))
}

func TestParseOrientation(t *testing.T) {
	for _, o := range []Orientation{Natural, Reverse, Undirected} {
		parsed, err := ParseOrientation(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, parsed)
	}
	parsed, err := ParseOrientation("")
	require.NoError(t, err)
	assert.Equal(t, Natural, parsed)

	_, err = ParseOrientation("both")
	assert.ErrorIs(t, err, qerrors.ErrInvalidConfig)
}
