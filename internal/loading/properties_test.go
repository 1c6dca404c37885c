package loading

import (
	"testing"

	"github.com/23skdu/quiver/internal/aggregation"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFloat64(t *testing.T) {
	for _, v := range []any{int(3), int8(3), int16(3), int32(3), int64(3), uint(3), uint8(3), uint16(3), uint32(3), uint64(3), float32(3), float64(3)} {
		f, err := ToFloat64(v)
		require.NoError(t, err, "%T", v)
		assert.Equal(t, 3.0, f)
	}
	for _, v := range []any{"3", true, []float64{3}, struct{}{}} {
		_, err := ToFloat64(v)
		assert.ErrorIs(t, err, qerrors.ErrMalformedProperty, "%T", v)
	}
}

func TestToFloat64Array(t *testing.T) {
	tests := []struct {
		value any
		want  []float64
	}{
		{nil, nil},
		{[]float64{1, 2}, []float64{1, 2}},
		{[]float32{1, 2}, []float64{1, 2}},
		{[]int{1, 2}, []float64{1, 2}},
		{[]int32{1, 2}, []float64{1, 2}},
		{[]int64{1, 2}, []float64{1, 2}},
		{[]uint32{1, 2}, []float64{1, 2}},
		{[]uint64{1, 2}, []float64{1, 2}},
		{[]any{1, 2.0, float32(3)}, []float64{1, 2, 3}},
	}
	for _, tt := range tests {
		got, err := ToFloat64Array(tt.value)
		require.NoError(t, err, "%T", tt.value)
		assert.Equal(t, tt.want, got)
	}

	_, err := ToFloat64Array([]any{1, "two"})
	assert.ErrorIs(t, err, qerrors.ErrMalformedProperty)
	_, err = ToFloat64Array([]string{"a"})
	assert.ErrorIs(t, err, qerrors.ErrMalformedProperty)
	_, err = ToFloat64Array(4.0)
	assert.ErrorIs(t, err, qerrors.ErrMalformedProperty)
}

func TestPreloadedReader(t *testing.T) {
	r, err := NewPreloadedReader([]any{
		[]float64{1, 10},
		[]int64{2, 20},
		nil,
	})
	require.NoError(t, err)

	aggs := []aggregation.Aggregation{aggregation.Sum, aggregation.Count, aggregation.Max}
	columns, err := r.ReadProperties([]int64{1, 0, 2, -1}, []int{1, 0, -1}, []float64{-1, -2, -3}, aggs)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 10, -1, -1}, columns[0])
	assert.Equal(t, []float64{2, 1, -2, -2}, columns[1], "count columns are read as stored")
	assert.Equal(t, []float64{-3, -3, -3, -3}, columns[2])

	_, err = NewPreloadedReader([]any{"row"})
	assert.ErrorIs(t, err, qerrors.ErrMalformedProperty)
}

func TestInlineReader(t *testing.T) {
	r := &inlineReader{}
	a := r.add([]any{1.5, nil})
	b := r.add([]any{int32(4)})

	aggs := []aggregation.Aggregation{aggregation.None, aggregation.None}
	columns, err := r.ReadProperties([]int64{b, a}, []int{0, 1}, []float64{0, 7}, aggs)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 1.5}, columns[0])
	assert.Equal(t, []float64{7, 7}, columns[1])

	r.reset()
	columns, err = r.ReadProperties([]int64{a}, []int{0}, []float64{5}, aggs[:1])
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, columns[0])
}
