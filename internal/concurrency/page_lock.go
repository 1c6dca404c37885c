package concurrency

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/23skdu/quiver/internal/metrics"
)

var ownerSeq atomic.Uint64

// NewOwner returns a token identifying one writer. Tokens are never zero.
func NewOwner() uint64 {
	return ownerSeq.Add(1)
}

// PageLock guards one page of a partitioned structure and remembers which
// writer holds it, so a writer can keep the lock across consecutive batches
// that stay on the same page.
type PageLock struct {
	mu    sync.Mutex
	owner atomic.Uint64
}

// Lock blocks until the page is free and records owner as its holder.
func (l *PageLock) Lock(owner uint64) {
	if !l.mu.TryLock() {
		start := time.Now()
		l.mu.Lock()
		metrics.PageLockWaitDuration.Observe(time.Since(start).Seconds())
	}
	l.owner.Store(owner)
	metrics.PageLockAcquisitionsTotal.Inc()
}

// IsLockedBy reports whether owner currently holds the page.
func (l *PageLock) IsLockedBy(owner uint64) bool {
	return owner != 0 && l.owner.Load() == owner
}

func (l *PageLock) Unlock() {
	l.owner.Store(0)
	l.mu.Unlock()
}
