package loading

import (
	"math"

	"github.com/23skdu/quiver/internal/aggregation"
	qerrors "github.com/23skdu/quiver/internal/errors"
)

// PropertyReader resolves the property values of a batch of relationships.
// It returns one column per key, each parallel to refs. A keyID below zero
// selects the default of that key. Values are returned as stored; COUNT
// columns are replaced with ones when the batch is buffered.
type PropertyReader interface {
	ReadProperties(refs []int64, keyIDs []int, defaults []float64, aggregations []aggregation.Aggregation) ([][]float64, error)
}

// PreloadedReader serves properties from rows held in memory, one uniform
// numeric row per reference.
type PreloadedReader struct {
	rows [][]float64
}

// NewPreloadedReader converts every row with ToFloat64Array.
func NewPreloadedReader(rows []any) (*PreloadedReader, error) {
	converted := make([][]float64, len(rows))
	for i, row := range rows {
		values, err := ToFloat64Array(row)
		if err != nil {
			return nil, err
		}
		converted[i] = values
	}
	return &PreloadedReader{rows: converted}, nil
}

func (r *PreloadedReader) ReadProperties(refs []int64, keyIDs []int, defaults []float64, aggregations []aggregation.Aggregation) ([][]float64, error) {
	columns := newColumns(len(keyIDs), len(refs))
	for i, ref := range refs {
		var row []float64
		if ref >= 0 && ref < int64(len(r.rows)) {
			row = r.rows[ref]
		}
		for k, key := range keyIDs {
			value := defaults[k]
			if key >= 0 && key < len(row) {
				value = row[key]
			}
			columns[k][i] = value
		}
	}
	return columns, nil
}

// SyntheticReader computes property values from the reference and key.
type SyntheticReader struct {
	Value func(ref int64, key int) float64
}

func (r SyntheticReader) ReadProperties(refs []int64, keyIDs []int, defaults []float64, aggregations []aggregation.Aggregation) ([][]float64, error) {
	columns := newColumns(len(keyIDs), len(refs))
	for i, ref := range refs {
		for k, key := range keyIDs {
			value := defaults[k]
			if key >= 0 && r.Value != nil {
				value = r.Value(ref, key)
			}
			columns[k][i] = value
		}
	}
	return columns, nil
}

// inlineReader resolves properties carried by the records themselves. Refs
// are slots into the rows of the current batch.
type inlineReader struct {
	rows [][]any
}

func (r *inlineReader) add(values []any) int64 {
	r.rows = append(r.rows, values)
	return int64(len(r.rows) - 1)
}

func (r *inlineReader) reset() {
	clear(r.rows)
	r.rows = r.rows[:0]
}

func (r *inlineReader) ReadProperties(refs []int64, keyIDs []int, defaults []float64, aggregations []aggregation.Aggregation) ([][]float64, error) {
	columns := newColumns(len(keyIDs), len(refs))
	for i, ref := range refs {
		var row []any
		if ref >= 0 && ref < int64(len(r.rows)) {
			row = r.rows[ref]
		}
		for k, key := range keyIDs {
			value := defaults[k]
			if key >= 0 && key < len(row) && row[key] != nil {
				v, err := ToFloat64(row[key])
				if err != nil {
					return nil, err
				}
				value = v
			}
			columns[k][i] = value
		}
	}
	return columns, nil
}

func newColumns(keys, n int) [][]float64 {
	columns := make([][]float64, keys)
	for k := range columns {
		columns[k] = make([]float64, n)
	}
	return columns
}

// toBits stores float64 columns as bit patterns into dst, reusing its slices.
func toBits(columns [][]float64, dst [][]int64) [][]int64 {
	if cap(dst) < len(columns) {
		dst = make([][]int64, len(columns))
	}
	dst = dst[:len(columns)]
	for c, column := range columns {
		if cap(dst[c]) < len(column) {
			dst[c] = make([]int64, len(column))
		}
		dst[c] = dst[c][:len(column)]
		for i, v := range column {
			dst[c][i] = int64(math.Float64bits(v))
		}
	}
	return dst
}

// ToFloat64 converts a numeric property value. Anything else fails with a
// malformed property error.
func ToFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	}
	return 0, qerrors.NewPropertyTypeError("loading.to_float64", value)
}

// ToFloat64Array converts a uniform numeric array property value.
func ToFloat64Array(value any) ([]float64, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []float64:
		return v, nil
	case []float32:
		return convertSlice(v), nil
	case []int:
		return convertSlice(v), nil
	case []int32:
		return convertSlice(v), nil
	case []int64:
		return convertSlice(v), nil
	case []uint32:
		return convertSlice(v), nil
	case []uint64:
		return convertSlice(v), nil
	case []any:
		out := make([]float64, len(v))
		for i, e := range v {
			f, err := ToFloat64(e)
			if err != nil {
				return nil, qerrors.NewPropertyTypeError("loading.to_float64_array", value).
					WithContext("index", i)
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, qerrors.NewPropertyTypeError("loading.to_float64_array", value)
}

type number interface {
	~int | ~int32 | ~int64 | ~uint32 | ~uint64 | ~float32
}

func convertSlice[T number](values []T) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
