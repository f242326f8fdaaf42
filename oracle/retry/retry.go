package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// InfiniteRetries is a retry ceiling that in practice only the total timeout ends.
const InfiniteRetries = 100_000

// ErrTotalTimeout is returned when the total deadline elapses before an attempt succeeds.
var ErrTotalTimeout = errors.New("full timeout exceeded")

// Options configures Do.
type Options struct {
	AttemptTimeout time.Duration // zero leaves attempts bounded only by TotalTimeout
	Retries        int           // attempts after the first one
	MinDelay       time.Duration
	MaxDelay       time.Duration
	TotalTimeout   time.Duration // must be positive

	// OnAttemptError observes every failed attempt before the next one is scheduled.
	OnAttemptError func(attempt int, err error)

	// Rand returns a fraction in [0, 1) used to pick the backoff delay.
	Rand func() float64
}

// AttemptsError is returned when the retry ceiling is reached. Err is the last attempt's error.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("all %d attempts failed, last error: %v", e.Attempts, e.Err)
}

func (e *AttemptsError) Unwrap() error {
	return e.Err
}

// Do runs fn until it succeeds, the retry ceiling is hit or the total timeout elapses.
// A non-positive TotalTimeout fails immediately with ErrTotalTimeout.
func Do[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if opts.TotalTimeout <= 0 {
		return zero, ErrTotalTimeout
	}

	ctx, cancel := context.WithTimeoutCause(ctx, opts.TotalTimeout, ErrTotalTimeout)
	defer cancel()

	maxAttempts := opts.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := runAttempt(ctx, opts.AttemptTimeout, fn)
		if err == nil {
			return v, nil
		}

		lastErr = err
		if opts.OnAttemptError != nil {
			opts.OnAttemptError(attempt, err)
		}

		if ctx.Err() != nil {
			return zero, context.Cause(ctx)
		}

		if attempt == maxAttempts {
			break
		}

		delay := opts.delay()
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, context.Cause(ctx)
		case <-timer.C:
		}
	}

	return zero, &AttemptsError{Attempts: maxAttempts, Err: lastErr}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   T
		err error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("operation timed out: %w", ctx.Err())
	}
}

func (o Options) delay() time.Duration {
	if o.MaxDelay <= o.MinDelay {
		return o.MinDelay
	}

	r := o.Rand
	if r == nil {
		r = rand.Float64
	}

	return o.MinDelay + time.Duration(r()*float64(o.MaxDelay-o.MinDelay))
}
