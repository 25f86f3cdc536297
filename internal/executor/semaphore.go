package executor

import "context"

// semaphore bounds how many unit workers of one executor run kernels at
// the same time. A nil semaphore is unlimited.
type semaphore struct {
	ch chan struct{}
}

// newSemaphore creates a semaphore with the given capacity.
// If n <= 0, returns nil (unlimited concurrency).
func newSemaphore(n int) *semaphore {
	if n <= 0 {
		return nil
	}
	return &semaphore{ch: make(chan struct{}, n)}
}

// acquire blocks until a slot is available or context is cancelled.
// Returns true if acquired, false if context was cancelled.
func (s *semaphore) acquire(ctx context.Context) bool {
	if s == nil {
		return true
	}
	select {
	case s.ch <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *semaphore) release() {
	if s == nil {
		return
	}
	<-s.ch
}
