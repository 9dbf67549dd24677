package runner

import "context"

// Limiter caps the number of runs in flight against one judge
// credential
type Limiter interface {
	// Acquire blocks until a slot is free or ctx ends. The returned func
	// frees the slot.
	Acquire(ctx context.Context) (func(), error)
}

// LocalLimiter is a process-local Limiter
type LocalLimiter struct {
	slots chan struct{}
}

// NewLocalLimiter creates a limiter with n slots
func NewLocalLimiter(n int) *LocalLimiter {
	if n < 1 {
		n = 1
	}
	return &LocalLimiter{slots: make(chan struct{}, n)}
}

func (l *LocalLimiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.slots <- struct{}{}:
		return func() { <-l.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
