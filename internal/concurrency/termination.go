package concurrency

import (
	"context"
	"sync/atomic"

	qerrors "github.com/23skdu/quiver/internal/errors"
)

// TerminationFlag is polled between batches; long running loops stop once it
// reports false.
type TerminationFlag interface {
	Running() bool
}

type contextFlag struct {
	ctx context.Context
}

func (f contextFlag) Running() bool {
	return f.ctx.Err() == nil
}

func (f contextFlag) Err() error {
	return f.ctx.Err()
}

// FromContext returns a flag that stops running once ctx is done.
func FromContext(ctx context.Context) TerminationFlag {
	return contextFlag{ctx: ctx}
}

// ManualFlag stops running after Terminate is called.
type ManualFlag struct {
	stopped atomic.Bool
}

func (f *ManualFlag) Running() bool {
	return !f.stopped.Load()
}

func (f *ManualFlag) Terminate() {
	f.stopped.Store(true)
}

// CheckRunning returns a cancelled error once the flag has stopped.
func CheckRunning(flag TerminationFlag, operation string) error {
	if flag == nil || flag.Running() {
		return nil
	}
	var cause error
	if withErr, ok := flag.(interface{ Err() error }); ok {
		cause = withErr.Err()
	}
	return qerrors.NewCancelledError(operation, cause)
}
