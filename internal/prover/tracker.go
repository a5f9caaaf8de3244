package prover

import (
	"context"
	"sync"
)

// reportTracker counts detached reports in flight. Unlike sync.WaitGroup it
// allows new reports to start while a waiter is blocked.
type reportTracker struct {
	mu      sync.Mutex
	pending int
	idle    chan struct{} // closed when pending drops to zero
}

func (r *reportTracker) add() {
	r.mu.Lock()
	if r.pending == 0 {
		r.idle = make(chan struct{})
	}
	r.pending++
	r.mu.Unlock()
}

func (r *reportTracker) done() {
	r.mu.Lock()
	r.pending--
	if r.pending == 0 {
		close(r.idle)
	}
	r.mu.Unlock()
}

// wait blocks until no report is pending or ctx ends.
func (r *reportTracker) wait(ctx context.Context) error {
	r.mu.Lock()
	if r.pending == 0 {
		r.mu.Unlock()
		return nil
	}
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
