package retry

import "time"

// Budget is the time left in one cycle. Every dependent call of the cycle is
// bounded by what remains, so the chain never overruns the cycle deadline.
type Budget struct {
	start time.Time
	total time.Duration
	now   func() time.Time
}

func NewBudget(total time.Duration) Budget {
	return Budget{start: time.Now(), total: total, now: time.Now}
}

func (b Budget) Start() time.Time {
	return b.start
}

func (b Budget) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}

// Remaining returns max(0, total - elapsed).
func (b Budget) Remaining() time.Duration {
	return max(0, b.total-b.Elapsed())
}

// Bound caps the total timeout of opts to the remaining budget.
func (b Budget) Bound(opts Options) Options {
	remaining := b.Remaining()
	if opts.TotalTimeout <= 0 || opts.TotalTimeout > remaining {
		opts.TotalTimeout = remaining
	}

	return opts
}
