package source

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	qerrors "github.com/23skdu/quiver/internal/errors"
)

// SQLEdges streams relationships from a query whose first two columns are
// the source and target ids. Further columns are properties named after the
// column.
type SQLEdges struct {
	rows  *sql.Rows
	keys  []string
	sizes ChunkSizer
}

var _ EdgeSource = (*SQLEdges)(nil)

func QueryEdges(ctx context.Context, db *sql.DB, query string, chunkSize int, args ...any) (*SQLEdges, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("edge query: %w", err)
	}
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	if len(columns) < 2 {
		_ = rows.Close()
		return nil, qerrors.NewValidationError("source.sql", "edge query must return source and target columns").
			WithContext("columns", columns)
	}
	return &SQLEdges{rows: rows, keys: columns[2:], sizes: chunksUpTo(chunkSize)}, nil
}

func (s *SQLEdges) PropertyKeys() []string {
	return s.keys
}

func (s *SQLEdges) NextChunk(ctx context.Context) ([]EdgeRecord, error) {
	width := 2 + len(s.keys)
	size := s.sizes.NextChunkSize()
	out := make([]EdgeRecord, 0, size)
	for len(out) < size && s.rows.Next() {
		values := make([]any, width)
		dest := make([]any, width)
		for i := range values {
			dest[i] = &values[i]
		}
		if err := s.rows.Scan(dest...); err != nil {
			return nil, err
		}
		source, err := toID(values[0])
		if err != nil {
			return nil, err
		}
		target, err := toID(values[1])
		if err != nil {
			return nil, err
		}
		record := EdgeRecord{Source: source, Target: target, Ref: NoRef}
		if width > 2 {
			record.Properties = values[2:]
		}
		out = append(out, record)
	}
	if err := s.rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, ctx.Err()
}

func (s *SQLEdges) Close() error {
	return s.rows.Close()
}

// SQLNodes streams nodes from a query returning an id column and, optionally,
// a label column holding a colon separated string or a list of strings.
type SQLNodes struct {
	rows   *sql.Rows
	labels bool
	sizes  ChunkSizer
}

var _ ChunkSource[NodeRecord] = (*SQLNodes)(nil)

func QueryNodes(ctx context.Context, db *sql.DB, query string, chunkSize int, args ...any) (*SQLNodes, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("node query: %w", err)
	}
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return &SQLNodes{rows: rows, labels: len(columns) > 1, sizes: chunksUpTo(chunkSize)}, nil
}

func (s *SQLNodes) NextChunk(ctx context.Context) ([]NodeRecord, error) {
	size := s.sizes.NextChunkSize()
	out := make([]NodeRecord, 0, size)
	for len(out) < size && s.rows.Next() {
		var id, labels any
		dest := []any{&id}
		if s.labels {
			dest = append(dest, &labels)
		}
		if err := s.rows.Scan(dest...); err != nil {
			return nil, err
		}
		mapped, err := toID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, NodeRecord{ID: mapped, Labels: toLabels(labels)})
	}
	if err := s.rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, ctx.Err()
}

func (s *SQLNodes) Close() error {
	return s.rows.Close()
}

func toID(v any) (int64, error) {
	switch id := v.(type) {
	case int64:
		return id, nil
	case int32:
		return int64(id), nil
	case int:
		return int64(id), nil
	case uint32:
		return int64(id), nil
	case uint64:
		if id <= 1<<63-1 {
			return int64(id), nil
		}
	}
	return 0, qerrors.NewValidationError("source.id", fmt.Sprintf("unsupported node id %v (%T)", v, v))
}

func toLabels(v any) []string {
	switch labels := v.(type) {
	case string:
		return splitLabels(labels)
	case []byte:
		return splitLabels(string(labels))
	case []string:
		return labels
	case []any:
		out := make([]string, 0, len(labels))
		for _, label := range labels {
			if s, ok := label.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
