package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/23skdu/quiver/internal/adjacency"
	"github.com/23skdu/quiver/internal/catalog"
	"github.com/23skdu/quiver/internal/idmap"
	"github.com/23skdu/quiver/internal/loading"
	"github.com/23skdu/quiver/internal/logging"
	qmemory "github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/source"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "quiver:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if err := envconfig.Process("QUIVER", &cfg); err != nil {
		return fmt.Errorf("failed to process config: %w", err)
	}
	load := loading.DefaultConfig()
	if err := envconfig.Process("QUIVER", &load); err != nil {
		return fmt.Errorf("failed to process load config: %w", err)
	}
	if err := parseFlags(args, &cfg, &load); err != nil {
		return err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Output: os.Stderr})
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	tracker := qmemory.NewTracker()
	load.Tracker = tracker
	load.Logger = logger
	if load.Properties, err = ParseProperties(cfg.Properties); err != nil {
		return err
	}

	nodes, edges, closeSources, err := openSources(ctx, &cfg, propertyKeys(load.Properties), tracker)
	if err != nil {
		return err
	}
	defer closeSources()

	loader, err := loading.NewGraphLoader(load)
	if err != nil {
		return err
	}
	started := time.Now()
	g, err := loader.Load(ctx, nodes, edges)
	if err != nil {
		return err
	}

	graphs := catalog.New(logger)
	defer func() { _ = graphs.Close() }()
	key := catalog.Key{Owner: "cli", Namespace: cfg.Format, Name: cfg.GraphName}
	if err := graphs.Set(key, g); err != nil {
		g.Release()
		return err
	}

	report(out, key, g, len(load.Properties), load.Concurrency, tracker, time.Since(started))
	return nil
}

func parseFlags(args []string, cfg *Config, load *loading.Config) error {
	fs := flag.NewFlagSet("quiver", flag.ContinueOnError)
	fs.StringVar(&cfg.Format, "format", cfg.Format, "edge source format: parquet, arrow, sql or duckdb")
	fs.StringVar(&cfg.Input, "input", cfg.Input, "edge file, or database DSN for sql and duckdb")
	fs.StringVar(&cfg.Nodes, "nodes", cfg.Nodes, "node file; nodes are discovered from edges when empty")
	fs.StringVar(&cfg.Query, "query", cfg.Query, "edge query returning source, target and property columns")
	fs.StringVar(&cfg.NodesQuery, "nodes-query", cfg.NodesQuery, "node query returning id and optional labels")
	fs.StringVar(&cfg.SourceColumn, "source-column", cfg.SourceColumn, "source id column of arrow inputs")
	fs.StringVar(&cfg.TargetColumn, "target-column", cfg.TargetColumn, "target id column of arrow inputs")
	fs.StringVar(&cfg.IDColumn, "id-column", cfg.IDColumn, "node id column of arrow inputs")
	fs.StringVar(&cfg.LabelColumn, "label-column", cfg.LabelColumn, "node label column of arrow inputs, none when empty")
	fs.StringVar(&cfg.Properties, "properties", cfg.Properties, "property mappings key[:aggregation[:default]],...")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "records per scanned chunk")
	fs.StringVar(&cfg.GraphName, "name", cfg.GraphName, "graph name")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "address serving /metrics, disabled when empty")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or console")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	fs.IntVar(&load.Concurrency, "concurrency", load.Concurrency, "worker count, GOMAXPROCS when 0")
	fs.IntVar(&load.BatchSize, "batch-size", load.BatchSize, "relationships buffered per worker before a flush")
	fs.BoolVar(&load.ValidateRelationships, "validate", load.ValidateRelationships, "fail on relationships with unknown nodes")
	fs.BoolVar(&load.IndexInverse, "inverse", load.IndexInverse, "also build the inverse adjacency list")
	fs.Func("orientation", "natural, reverse or undirected", load.Orientation.Decode)
	fs.Func("compression", "varlong, packed or uncompressed", load.Compression.Decode)
	fs.Func("idmap", "auto, array, bitmap or highlimit", load.IDMapType.Decode)
	fs.Func("aggregation", "relationship aggregation: none, single, sum, min, max or count", load.Aggregation.Decode)
	return fs.Parse(args)
}

func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("address", addr).Msg("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}

// openSources opens the node and edge sources of cfg. The node source is nil
// when no nodes are configured.
func openSources(ctx context.Context, cfg *Config, keys []string, tracker *qmemory.Tracker) (source.ChunkSource[source.NodeRecord], source.EdgeSource, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	fail := func(err error) (source.ChunkSource[source.NodeRecord], source.EdgeSource, func(), error) {
		closeAll()
		return nil, nil, nil, err
	}

	var (
		nodes source.ChunkSource[source.NodeRecord]
		edges source.EdgeSource
	)
	switch cfg.Format {
	case "parquet":
		pe, err := source.OpenParquetEdges(cfg.Input, cfg.ChunkSize)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pe.Close)
		edges = pe
		if cfg.Nodes != "" {
			pn, err := source.OpenParquetNodes(cfg.Nodes, cfg.ChunkSize)
			if err != nil {
				return fail(err)
			}
			closers = append(closers, pn.Close)
			nodes = pn
		}

	case "arrow":
		f, err := os.Open(cfg.Input)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, f.Close)
		ae, err := source.OpenIPCEdges(f, source.ArrowEdgeConfig{
			SourceColumn:    cfg.SourceColumn,
			TargetColumn:    cfg.TargetColumn,
			PropertyColumns: keys,
		}, tracker)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, ae.Close)
		edges = ae
		if cfg.Nodes != "" {
			nf, err := os.Open(cfg.Nodes)
			if err != nil {
				return fail(err)
			}
			closers = append(closers, nf.Close)
			reader, err := ipc.NewReader(nf, ipc.WithAllocator(qmemory.NewTrackingAllocator(memory.NewGoAllocator(), tracker)))
			if err != nil {
				return fail(err)
			}
			an, err := source.NewArrowNodes(reader, cfg.IDColumn, cfg.LabelColumn)
			if err != nil {
				reader.Release()
				return fail(err)
			}
			closers = append(closers, an.Close)
			nodes = an
		}

	case "sql", "duckdb":
		db, err := sql.Open("duckdb", cfg.Input)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, db.Close)
		if cfg.Format == "duckdb" {
			de, err := source.DuckDBEdges(ctx, db, cfg.Query, source.ArrowEdgeConfig{
				SourceColumn:    cfg.SourceColumn,
				TargetColumn:    cfg.TargetColumn,
				PropertyColumns: keys,
			})
			if err != nil {
				return fail(err)
			}
			closers = append(closers, de.Close)
			edges = de
		} else {
			se, err := source.QueryEdges(ctx, db, cfg.Query, cfg.ChunkSize)
			if err != nil {
				return fail(err)
			}
			closers = append(closers, se.Close)
			edges = se
		}
		if cfg.NodesQuery != "" {
			sn, err := source.QueryNodes(ctx, db, cfg.NodesQuery, cfg.ChunkSize)
			if err != nil {
				return fail(err)
			}
			closers = append(closers, sn.Close)
			nodes = sn
		}
	}
	return nodes, edges, closeAll, nil
}

func report(out io.Writer, key catalog.Key, g *loading.Graph, propertyCount, concurrency int, tracker *qmemory.Tracker, elapsed time.Duration) {
	m := g.IDMap()
	estimate := adjacency.EstimateMemory(m.NodeCount(), g.RelationshipCount(), propertyCount, concurrency).
		Add(idmap.EstimateMemory(m.Type(), m.NodeCount(), m.HighestOriginalID()))

	fmt.Fprintf(out, "graph:                 %s\n", key)
	fmt.Fprintf(out, "id map:                %s\n", m.Type())
	fmt.Fprintf(out, "nodes:                 %d\n", g.NodeCount())
	fmt.Fprintf(out, "relationships:         %d\n", g.RelationshipCount())
	fmt.Fprintf(out, "dropped relationships: %d\n", g.DroppedRelationships())
	fmt.Fprintf(out, "graph bytes:           %d\n", g.SizeInBytes())
	fmt.Fprintf(out, "tracked bytes:         %d (peak %d)\n", tracker.InUse(), tracker.Peak())
	fmt.Fprintf(out, "estimated bytes:       %d - %d\n", estimate.Min, estimate.Max)
	fmt.Fprintf(out, "elapsed:               %s\n", elapsed.Round(time.Millisecond))
}
