package source

import (
	"context"
	"io"
)

// SliceSource serves records held in memory.
type SliceSource[R any] struct {
	records   []R
	chunkSize int
	pos       int
	keys      []string
}

func NewSliceSource[R any](records []R, chunkSize int) *SliceSource[R] {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return &SliceSource[R]{records: records, chunkSize: chunkSize}
}

// NewEdgeSlice serves edges whose Properties follow keys.
func NewEdgeSlice(records []EdgeRecord, keys []string, chunkSize int) *SliceSource[EdgeRecord] {
	s := NewSliceSource(records, chunkSize)
	s.keys = keys
	return s
}

func (s *SliceSource[R]) NextChunk(context.Context) ([]R, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	end := min(s.pos+s.chunkSize, len(s.records))
	chunk := s.records[s.pos:end]
	s.pos = end
	return chunk, nil
}

func (s *SliceSource[R]) PropertyKeys() []string {
	return s.keys
}

func (s *SliceSource[R]) Close() error {
	return nil
}

var _ EdgeSource = (*SliceSource[EdgeRecord])(nil)
