// Package source adapts record producers to the batch scan contract used by
// the loaders: a worker reserves a batch, then consumes it record by record
// until its buffer is full, and is handed the rest of the batch again after
// flushing.
package source

import (
	"context"
	"errors"
	"io"
	"sync"
)

// NoRef marks a relationship without an external property reference.
const NoRef int64 = -1

// DefaultChunkSize is the number of records per reserved batch.
const DefaultChunkSize = 10_000

// NodeRecord is one node observation.
type NodeRecord struct {
	ID     int64
	Labels []string
}

// EdgeRecord is one relationship observation. Properties holds raw values
// parallel to the source's property keys; nil entries are missing values.
// Ref points into an external property store instead, or is NoRef.
type EdgeRecord struct {
	Source     int64
	Target     int64
	Ref        int64
	Properties []any
}

// Consumer receives one record and reports whether it can take another.
type Consumer[R any] func(record R) (bool, error)

// Cursor is the per worker view of a scan.
type Cursor[R any] interface {
	// ReserveBatch makes the next batch current, unless the current one was
	// not fully consumed. It returns false once the scan is exhausted.
	ReserveBatch(ctx context.Context) (bool, error)
	// ConsumeBatch presents the remaining records of the current batch until
	// consumer declines, and reports whether the batch was fully consumed.
	ConsumeBatch(consumer Consumer[R]) (bool, error)
}

// ChunkSource produces records in chunks. NextChunk returns io.EOF once
// exhausted. Implementations need not be safe for concurrent use.
type ChunkSource[R any] interface {
	NextChunk(ctx context.Context) ([]R, error)
	Close() error
}

// EdgeSource is a chunk source of relationships with named property columns.
type EdgeSource interface {
	ChunkSource[EdgeRecord]
	PropertyKeys() []string
}

// Scanner shares one ChunkSource between the cursors of several workers.
type Scanner[R any] struct {
	mu        sync.Mutex
	src       ChunkSource[R]
	exhausted bool
}

func NewScanner[R any](src ChunkSource[R]) *Scanner[R] {
	return &Scanner[R]{src: src}
}

// NewCursor returns a cursor for one worker.
func (s *Scanner[R]) NewCursor() *ChunkCursor[R] {
	return &ChunkCursor[R]{scanner: s}
}

func (s *Scanner[R]) next(ctx context.Context) ([]R, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.exhausted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := s.src.NextChunk(ctx)
		if errors.Is(err, io.EOF) {
			s.exhausted = true
			if len(chunk) > 0 {
				return chunk, nil
			}
			break
		}
		if err != nil {
			return nil, err
		}
		if len(chunk) > 0 {
			return chunk, nil
		}
	}
	return nil, io.EOF
}

// Close closes the underlying source.
func (s *Scanner[R]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Close()
}

// ChunkCursor is the Cursor handed out by a Scanner.
type ChunkCursor[R any] struct {
	scanner *Scanner[R]
	chunk   []R
	pos     int
}

var _ Cursor[NodeRecord] = (*ChunkCursor[NodeRecord])(nil)

func (c *ChunkCursor[R]) ReserveBatch(ctx context.Context) (bool, error) {
	if c.pos < len(c.chunk) {
		return true, nil
	}
	chunk, err := c.scanner.next(ctx)
	if errors.Is(err, io.EOF) {
		c.chunk, c.pos = nil, 0
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.chunk, c.pos = chunk, 0
	return true, nil
}

func (c *ChunkCursor[R]) ConsumeBatch(consumer Consumer[R]) (bool, error) {
	for c.pos < len(c.chunk) {
		more, err := consumer(c.chunk[c.pos])
		if err != nil {
			return false, err
		}
		c.pos++
		if !more {
			return c.pos == len(c.chunk), nil
		}
	}
	return true, nil
}
