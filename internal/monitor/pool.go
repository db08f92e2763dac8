package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool runs notification sends and persistence writes on a fixed number of
// workers. Go blocks while every worker is busy.
type Pool struct {
	g        errgroup.Group
	timeout  time.Duration
	inflight atomic.Int64
}

func NewPool(workers int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{timeout: timeout}
	p.g.SetLimit(workers)
	return p
}

// Go runs task with a per-task timeout, then done with its result. The task
// context outlives cancellation of ctx so shutdown does not abort calls
// already in flight.
func (p *Pool) Go(ctx context.Context, task func(ctx context.Context) error, done func(err error)) {
	p.inflight.Add(1)
	p.g.Go(func() error {
		defer p.inflight.Add(-1)
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		err := task(tctx)
		if done != nil {
			done(err)
		}
		return nil
	})
}

func (p *Pool) InFlight() int64 {
	return p.inflight.Load()
}

// Wait blocks until submitted tasks finish or timeout passes. It reports
// whether everything finished.
func (p *Pool) Wait(timeout time.Duration) bool {
	finished := make(chan struct{})
	go func() {
		_ = p.g.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return true
	case <-time.After(timeout):
		return false
	}
}
