package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds the number of simultaneously in-flight tasks of a kind.
// Excess tasks queue in submission order and are released as slots free up;
// a failing task releases its slot without affecting queued tasks. One
// limiter instance is shared by all callers of a kind (worker calls,
// validation calls).
type Limiter struct {
	sem *semaphore.Weighted
	n   int
}

// NewLimiter creates a limiter allowing at most n concurrent tasks.
// n <= 0 defaults to 4.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = 4
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), n: n}
}

// Limit returns the configured concurrency bound.
func (l *Limiter) Limit() int {
	return l.n
}

// Run executes task once a slot is available, blocking until then. The slot
// is released when the task returns, whether or not it errored. A canceled
// context aborts the wait.
func (l *Limiter) Run(ctx context.Context, task func(ctx context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return task(ctx)
}

// RunVal is like Run but preserves the task's return value.
func RunVal[T any](ctx context.Context, l *Limiter, task func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer l.sem.Release(1)
	return task(ctx)
}
