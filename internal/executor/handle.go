package executor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Handle is the pending result of one submitted job. It is resolved at most
// once; a result delivered after Await gave up is dropped.
type Handle struct {
	ID string

	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	abandoned bool
	answers   []int
	err       error
	onAbandon func()
}

// NewHandle creates an unresolved handle. onAbandon, when set, runs once if
// Await stops waiting before a result arrives.
func NewHandle(id string, onAbandon func()) *Handle {
	return &Handle{ID: id, done: make(chan struct{}), onAbandon: onAbandon}
}

// Resolve stores the job outcome. It reports false when the handle was
// already resolved or its waiter has given up.
func (h *Handle) Resolve(answers []int, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.resolved || h.abandoned {
		return false
	}
	h.resolved = true
	h.answers = answers
	h.err = err
	close(h.done)
	return true
}

// Await blocks until the job resolves, the timeout elapses or ctx ends.
func (h *Handle) Await(ctx context.Context, timeout time.Duration) ([]int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var cause error
	select {
	case <-h.done:
		return h.answers, h.err
	case <-timer.C:
		cause = ErrTimeout
	case <-ctx.Done():
		cause = fmt.Errorf("executor: await %s: %w", h.ID, ctx.Err())
	}

	h.mu.Lock()
	if h.resolved {
		h.mu.Unlock()
		return h.answers, h.err
	}
	h.abandoned = true
	h.mu.Unlock()

	if h.onAbandon != nil {
		h.onAbandon()
	}
	return nil, cause
}

// Abandoned reports whether the waiter gave up on this handle.
func (h *Handle) Abandoned() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.abandoned
}
