package fetcher

import (
	"context"
	"sync"
)

// Readiness is a one-time initialization gate owned by a backend instance.
// The init function starts on the first Wait and runs exactly once; every
// caller, including ones arriving while it is still running, waits for the
// same completion and sees the same error.
type Readiness struct {
	init func(context.Context) error

	once sync.Once
	done chan struct{}
	err  error
}

func NewReadiness(init func(context.Context) error) *Readiness {
	return &Readiness{init: init, done: make(chan struct{})}
}

// Wait blocks until initialization has completed or ctx is done. The
// initialization itself is not cancelled when the first caller's ctx is;
// it keeps running for later callers.
func (r *Readiness) Wait(ctx context.Context) error {
	r.once.Do(func() {
		initCtx := context.WithoutCancel(ctx)
		go func() {
			defer close(r.done)
			r.err = r.init(initCtx)
		}()
	})

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
