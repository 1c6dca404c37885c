package source

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/array"
	duckdb "github.com/marcboeker/go-duckdb"
)

// QueryArrow runs query on a DuckDB database through DuckDB's Arrow
// interface. cleanup releases the reader and the dedicated connection.
func QueryArrow(ctx context.Context, db *sql.DB, query string, args ...any) (array.RecordReader, func(), error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open conn: %w", err)
	}

	var ar *duckdb.Arrow
	err = conn.Raw(func(c any) error {
		dc, ok := c.(driver.Conn)
		if !ok {
			return fmt.Errorf("not a duckdb driver connection")
		}
		var err error
		ar, err = duckdb.NewArrowFromConn(dc)
		return err
	})
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to init arrow: %w", err)
	}

	reader, err := ar.QueryContext(ctx, query, args...)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("query execution failed: %w", err)
	}
	cleanup := func() {
		reader.Release()
		_ = conn.Close()
	}
	return reader, cleanup, nil
}

// DuckDBEdges streams the result of an edge query as Arrow record batches.
// Closing the source releases the connection.
func DuckDBEdges(ctx context.Context, db *sql.DB, query string, cfg ArrowEdgeConfig) (*ArrowEdges, error) {
	reader, cleanup, err := QueryArrow(ctx, db, query)
	if err != nil {
		return nil, err
	}
	reader.Retain()
	edges, err := NewArrowEdges(reader, cfg)
	if err != nil {
		reader.Release()
		cleanup()
		return nil, err
	}
	return edges.WithCloser(func() error {
		cleanup()
		return nil
	}), nil
}
