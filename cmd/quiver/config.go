package main

import (
	"errors"
	"strconv"
	"strings"

	"github.com/23skdu/quiver/internal/aggregation"
	"github.com/23skdu/quiver/internal/loading"
)

// Config validation errors
var (
	ErrMissingInput     = errors.New("input cannot be empty")
	ErrMissingQuery     = errors.New("query cannot be empty for sql sources")
	ErrInvalidFormat    = errors.New("format must be parquet, arrow, sql or duckdb")
	ErrInvalidChunkSize = errors.New("chunk_size must be positive")
	ErrInvalidLogFormat = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel  = errors.New("log_level must be debug, info, warn, or error")
	ErrInvalidProperty  = errors.New("property must be key[:aggregation[:default]]")
)

// Config holds the command line settings. Load settings live in
// loading.Config and share the QUIVER prefix.
type Config struct {
	Format string `envconfig:"FORMAT" default:"parquet"`
	// Input is the edge file for parquet and arrow, the DSN for sql and duckdb.
	Input      string `envconfig:"INPUT"`
	Nodes      string `envconfig:"NODES"`
	Query      string `envconfig:"QUERY"`
	NodesQuery string `envconfig:"NODES_QUERY"`

	SourceColumn string `envconfig:"SOURCE_COLUMN" default:"source"`
	TargetColumn string `envconfig:"TARGET_COLUMN" default:"target"`
	IDColumn     string `envconfig:"ID_COLUMN" default:"id"`
	LabelColumn  string `envconfig:"LABEL_COLUMN" default:"labels"`
	// Properties is a comma separated list of key[:aggregation[:default]].
	Properties string `envconfig:"PROPERTIES"`
	ChunkSize  int    `envconfig:"CHUNK_SIZE" default:"10000"`

	GraphName   string `envconfig:"GRAPH_NAME" default:"graph"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Format:       "parquet",
		SourceColumn: "source",
		TargetColumn: "target",
		IDColumn:     "id",
		LabelColumn:  "labels",
		ChunkSize:    10_000,
		GraphName:    "graph",
		LogFormat:    "json",
		LogLevel:     "info",
	}
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	switch cfg.Format {
	case "parquet", "arrow":
		if cfg.Input == "" {
			return ErrMissingInput
		}
	case "sql", "duckdb":
		if cfg.Query == "" {
			return ErrMissingQuery
		}
	default:
		return ErrInvalidFormat
	}
	if cfg.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	_, err := ParseProperties(cfg.Properties)
	return err
}

// ParseProperties reads property mappings such as "weight:sum:1,cost".
func ParseProperties(s string) ([]loading.PropertyMapping, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var mappings []loading.PropertyMapping
	for _, item := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if parts[0] == "" || len(parts) > 3 {
			return nil, ErrInvalidProperty
		}
		m := loading.PropertyMapping{Key: parts[0]}
		if len(parts) > 1 {
			agg, err := aggregation.Parse(parts[1])
			if err != nil {
				return nil, errors.Join(ErrInvalidProperty, err)
			}
			m.Aggregation = agg
		}
		if len(parts) > 2 {
			v, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				return nil, errors.Join(ErrInvalidProperty, err)
			}
			m.DefaultValue = v
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

func propertyKeys(mappings []loading.PropertyMapping) []string {
	keys := make([]string, len(mappings))
	for i, m := range mappings {
		keys[i] = m.Key
	}
	return keys
}
