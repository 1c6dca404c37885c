package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// EdgeRow is the Parquet layout of a relationship file.
type EdgeRow struct {
	Source int64    `parquet:"source"`
	Target int64    `parquet:"target"`
	Weight *float64 `parquet:"weight,optional"`
}

// NodeRow is the Parquet layout of a node file.
type NodeRow struct {
	ID     int64    `parquet:"id"`
	Labels []string `parquet:"labels"`
}

// WeightKey is the property key of the EdgeRow weight column.
const WeightKey = "weight"

// WriteParquetEdges writes rows as a zstd compressed Parquet file.
func WriteParquetEdges(w io.Writer, rows []EdgeRow) error {
	return writeParquet(w, rows)
}

// WriteParquetNodes writes rows as a zstd compressed Parquet file.
func WriteParquetNodes(w io.Writer, rows []NodeRow) error {
	return writeParquet(w, rows)
}

func writeParquet[T any](w io.Writer, rows []T) error {
	pw := parquet.NewGenericWriter[T](w, parquet.Compression(&parquet.Zstd))
	if _, err := pw.Write(rows); err != nil {
		return err
	}
	return pw.Close()
}

// parquetRows reads a Parquet file of T in chunks. Every chunk is freshly
// allocated since chunks are consumed while later ones are read.
type parquetRows[T any] struct {
	file   *os.File
	reader *parquet.GenericReader[T]
	sizes  ChunkSizer
	eof    bool
}

func openParquet[T any](path string, chunkSize int) (*parquetRows[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet file %s: %w", path, err)
	}
	return &parquetRows[T]{
		file:   f,
		reader: parquet.NewGenericReader[T](pf),
		sizes:  chunksUpTo(chunkSize),
	}, nil
}

func (p *parquetRows[T]) next() ([]T, error) {
	if p.eof {
		return nil, io.EOF
	}
	rows := make([]T, p.sizes.NextChunkSize())
	n, err := p.reader.Read(rows)
	if errors.Is(err, io.EOF) {
		p.eof = true
		if n == 0 {
			return nil, io.EOF
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return rows[:n], nil
}

func (p *parquetRows[T]) close() error {
	return errors.Join(p.reader.Close(), p.file.Close())
}

// ParquetEdges reads EdgeRow files. The weight column is exposed as the
// single property WeightKey.
type ParquetEdges struct {
	rows *parquetRows[EdgeRow]
}

var _ EdgeSource = (*ParquetEdges)(nil)

func OpenParquetEdges(path string, chunkSize int) (*ParquetEdges, error) {
	rows, err := openParquet[EdgeRow](path, chunkSize)
	if err != nil {
		return nil, err
	}
	return &ParquetEdges{rows: rows}, nil
}

func (p *ParquetEdges) PropertyKeys() []string {
	return []string{WeightKey}
}

func (p *ParquetEdges) NextChunk(context.Context) ([]EdgeRecord, error) {
	rows, err := p.rows.next()
	if err != nil {
		return nil, err
	}
	out := make([]EdgeRecord, len(rows))
	for i, row := range rows {
		var weight any
		if row.Weight != nil {
			weight = *row.Weight
		}
		out[i] = EdgeRecord{Source: row.Source, Target: row.Target, Ref: NoRef, Properties: []any{weight}}
	}
	return out, nil
}

func (p *ParquetEdges) Close() error {
	return p.rows.close()
}

// ParquetNodes reads NodeRow files.
type ParquetNodes struct {
	rows *parquetRows[NodeRow]
}

var _ ChunkSource[NodeRecord] = (*ParquetNodes)(nil)

func OpenParquetNodes(path string, chunkSize int) (*ParquetNodes, error) {
	rows, err := openParquet[NodeRow](path, chunkSize)
	if err != nil {
		return nil, err
	}
	return &ParquetNodes{rows: rows}, nil
}

func (p *ParquetNodes) NextChunk(context.Context) ([]NodeRecord, error) {
	rows, err := p.rows.next()
	if err != nil {
		return nil, err
	}
	out := make([]NodeRecord, len(rows))
	for i, row := range rows {
		out[i] = NodeRecord{ID: row.ID, Labels: row.Labels}
	}
	return out, nil
}

func (p *ParquetNodes) Close() error {
	return p.rows.close()
}
