package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	qerrors "github.com/23skdu/quiver/internal/errors"
	qmemory "github.com/23skdu/quiver/internal/memory"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ArrowEdgeConfig names the columns of an Arrow edge stream.
type ArrowEdgeConfig struct {
	SourceColumn    string
	TargetColumn    string
	PropertyColumns []string
}

// ArrowEdges reads relationships from a stream of Arrow record batches, one
// chunk per record batch.
type ArrowEdges struct {
	reader  array.RecordReader
	source  int
	target  int
	columns []int
	keys    []string
	closer  func() error
}

var _ EdgeSource = (*ArrowEdges)(nil)

// NewArrowEdges resolves cfg against the reader's schema. The source takes
// ownership of reader.
func NewArrowEdges(reader array.RecordReader, cfg ArrowEdgeConfig) (*ArrowEdges, error) {
	schema := reader.Schema()
	source, err := columnIndex(schema, cfg.SourceColumn)
	if err != nil {
		return nil, err
	}
	target, err := columnIndex(schema, cfg.TargetColumn)
	if err != nil {
		return nil, err
	}
	columns := make([]int, len(cfg.PropertyColumns))
	for i, name := range cfg.PropertyColumns {
		if columns[i], err = columnIndex(schema, name); err != nil {
			return nil, err
		}
	}
	return &ArrowEdges{
		reader:  reader,
		source:  source,
		target:  target,
		columns: columns,
		keys:    cfg.PropertyColumns,
	}, nil
}

// OpenIPCEdges reads an Arrow IPC stream. Buffers are allocated through a
// tracking allocator reporting to tracker.
func OpenIPCEdges(r io.Reader, cfg ArrowEdgeConfig, tracker *qmemory.Tracker) (*ArrowEdges, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(qmemory.NewTrackingAllocator(memory.NewGoAllocator(), tracker)))
	if err != nil {
		return nil, fmt.Errorf("open arrow ipc stream: %w", err)
	}
	edges, err := NewArrowEdges(reader, cfg)
	if err != nil {
		reader.Release()
		return nil, err
	}
	return edges, nil
}

func (a *ArrowEdges) PropertyKeys() []string {
	return a.keys
}

func (a *ArrowEdges) NextChunk(context.Context) ([]EdgeRecord, error) {
	if !a.reader.Next() {
		if err := a.reader.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	rec := a.reader.Record()
	rows := int(rec.NumRows())
	sources, targets := rec.Column(a.source), rec.Column(a.target)

	out := make([]EdgeRecord, rows)
	for i := 0; i < rows; i++ {
		s, err := idAt(sources, i)
		if err != nil {
			return nil, err
		}
		t, err := idAt(targets, i)
		if err != nil {
			return nil, err
		}
		out[i] = EdgeRecord{Source: s, Target: t, Ref: NoRef}
		if len(a.columns) > 0 {
			props := make([]any, len(a.columns))
			for c, col := range a.columns {
				props[c] = valueAt(rec.Column(col), i)
			}
			out[i].Properties = props
		}
	}
	return out, nil
}

// WithCloser registers a function run after the reader was released.
func (a *ArrowEdges) WithCloser(closer func() error) *ArrowEdges {
	a.closer = closer
	return a
}

func (a *ArrowEdges) Close() error {
	a.reader.Release()
	if a.closer != nil {
		return a.closer()
	}
	return nil
}

// ArrowNodes reads nodes from Arrow record batches. The optional label
// column holds a string, a list of strings, or a colon separated string.
type ArrowNodes struct {
	reader array.RecordReader
	id     int
	labels int
}

var _ ChunkSource[NodeRecord] = (*ArrowNodes)(nil)

func NewArrowNodes(reader array.RecordReader, idColumn, labelColumn string) (*ArrowNodes, error) {
	schema := reader.Schema()
	id, err := columnIndex(schema, idColumn)
	if err != nil {
		return nil, err
	}
	labels := -1
	if labelColumn != "" {
		if labels, err = columnIndex(schema, labelColumn); err != nil {
			return nil, err
		}
	}
	return &ArrowNodes{reader: reader, id: id, labels: labels}, nil
}

func (a *ArrowNodes) NextChunk(context.Context) ([]NodeRecord, error) {
	if !a.reader.Next() {
		if err := a.reader.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	rec := a.reader.Record()
	rows := int(rec.NumRows())
	ids := rec.Column(a.id)

	out := make([]NodeRecord, rows)
	for i := 0; i < rows; i++ {
		id, err := idAt(ids, i)
		if err != nil {
			return nil, err
		}
		out[i].ID = id
		if a.labels >= 0 {
			out[i].Labels = labelsAt(rec.Column(a.labels), i)
		}
	}
	return out, nil
}

func (a *ArrowNodes) Close() error {
	a.reader.Release()
	return nil
}

func columnIndex(schema *arrow.Schema, name string) (int, error) {
	indices := schema.FieldIndices(name)
	if len(indices) == 0 {
		return 0, qerrors.NewValidationError("source.schema", fmt.Sprintf("column %q not found", name)).
			WithContext("schema", schema.String())
	}
	return indices[0], nil
}

func idAt(arr arrow.Array, i int) (int64, error) {
	if arr.IsNull(i) {
		return 0, qerrors.NewValidationError("source.id", "null node id").WithContext("row", i)
	}
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i), nil
	case *array.Int32:
		return int64(a.Value(i)), nil
	case *array.Uint32:
		return int64(a.Value(i)), nil
	case *array.Uint64:
		v := a.Value(i)
		if v > 1<<63-1 {
			return 0, qerrors.NewValidationError("source.id", "node id exceeds int64").WithContext("row", i)
		}
		return int64(v), nil
	}
	return 0, qerrors.NewValidationError("source.id", fmt.Sprintf("unsupported id column type %s", arr.DataType()))
}

// valueAt returns the raw Go value of a property cell. Types without a
// numeric meaning are returned as their string form.
func valueAt(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Int16:
		return a.Value(i)
	case *array.Int8:
		return a.Value(i)
	case *array.Uint32:
		return a.Value(i)
	case *array.List:
		start, end := a.ValueOffsets(i)
		switch values := a.ListValues().(type) {
		case *array.Float64:
			return append([]float64(nil), values.Float64Values()[start:end]...)
		case *array.Float32:
			return append([]float32(nil), values.Float32Values()[start:end]...)
		case *array.Int64:
			return append([]int64(nil), values.Int64Values()[start:end]...)
		}
	}
	return arr.ValueStr(i)
}

func labelsAt(arr arrow.Array, i int) []string {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		return splitLabels(a.Value(i))
	case *array.List:
		values, ok := a.ListValues().(*array.String)
		if !ok {
			return nil
		}
		start, end := a.ValueOffsets(i)
		labels := make([]string, 0, end-start)
		for j := start; j < end; j++ {
			labels = append(labels, values.Value(int(j)))
		}
		return labels
	}
	return splitLabels(arr.ValueStr(i))
}

func splitLabels(s string) []string {
	var labels []string
	for _, label := range strings.Split(s, ":") {
		if label = strings.TrimSpace(label); label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}
