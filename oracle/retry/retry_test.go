package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type RetrySuite struct {
	suite.Suite
}

func TestRetrySuite(t *testing.T) {
	suite.Run(t, new(RetrySuite))
}

func (s *RetrySuite) TestDo_SucceedsAfterFailures() {
	var calls atomic.Int32
	var observed []int

	v, err := Do(context.Background(), Options{
		Retries:      5,
		TotalTimeout: time.Second,
		OnAttemptError: func(attempt int, err error) {
			observed = append(observed, attempt)
		},
	}, func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	})

	s.Require().NoError(err)
	s.Equal("ok", v)
	s.Equal(int32(3), calls.Load())
	s.Equal([]int{1, 2}, observed)
}

func (s *RetrySuite) TestDo_RetryCeiling() {
	var calls atomic.Int32
	failure := errors.New("boom")

	_, err := Do(context.Background(), Options{
		Retries:      2,
		TotalTimeout: time.Second,
	}, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, failure
	})

	var attemptsErr *AttemptsError
	s.Require().ErrorAs(err, &attemptsErr)
	s.Equal(3, attemptsErr.Attempts)
	s.ErrorIs(err, failure)
	s.NotErrorIs(err, ErrTotalTimeout)
	s.Equal(int32(3), calls.Load())
}

func (s *RetrySuite) TestDo_TotalTimeoutDuringBackoff() {
	var calls atomic.Int32

	_, err := Do(context.Background(), Options{
		Retries:      InfiniteRetries,
		MaxDelay:     2500 * time.Millisecond,
		TotalTimeout: 500 * time.Millisecond,
		Rand:         func() float64 { return 0.08 },
	}, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("unavailable")
	})

	s.Require().ErrorIs(err, ErrTotalTimeout)
	s.GreaterOrEqual(calls.Load(), int32(2))
	s.LessOrEqual(calls.Load(), int32(3))
}

func (s *RetrySuite) TestDo_AttemptTimeout() {
	var calls atomic.Int32

	_, err := Do(context.Background(), Options{
		AttemptTimeout: 20 * time.Millisecond,
		Retries:        1,
		TotalTimeout:   time.Second,
	}, func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-ctx.Done()
		return 0, ctx.Err()
	})

	var attemptsErr *AttemptsError
	s.Require().ErrorAs(err, &attemptsErr)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Equal(int32(2), calls.Load())
}

func (s *RetrySuite) TestDo_AttemptIgnoringContext() {
	start := time.Now()

	_, err := Do(context.Background(), Options{
		AttemptTimeout: 20 * time.Millisecond,
		TotalTimeout:   time.Second,
	}, func(ctx context.Context) (int, error) {
		time.Sleep(300 * time.Millisecond)
		return 1, nil
	})

	s.Require().Error(err)
	s.Less(time.Since(start), 200*time.Millisecond)
}

func (s *RetrySuite) TestDo_NoBudget() {
	called := false

	_, err := Do(context.Background(), Options{}, func(ctx context.Context) (int, error) {
		called = true
		return 1, nil
	})

	s.Require().ErrorIs(err, ErrTotalTimeout)
	s.False(called)
}

func (s *RetrySuite) TestDo_ParentCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, Options{TotalTimeout: time.Second}, func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})

	s.Require().ErrorIs(err, context.Canceled)
}

func (s *RetrySuite) TestDelay() {
	testCases := []struct {
		name     string
		opts     Options
		expected time.Duration
	}{
		{"no delay", Options{}, 0},
		{"fixed", Options{MinDelay: time.Second, MaxDelay: time.Second}, time.Second},
		{"lower bound", Options{MaxDelay: 2500 * time.Millisecond, Rand: func() float64 { return 0 }}, 0},
		{"fraction", Options{MaxDelay: 2500 * time.Millisecond, Rand: func() float64 { return 0.08 }}, 200 * time.Millisecond},
		{"offset", Options{MinDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Rand: func() float64 { return 0.5 }}, 200 * time.Millisecond},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.expected, tc.opts.delay())
		})
	}
}

func (s *RetrySuite) TestBudget() {
	start := time.Unix(1000, 0)
	now := start
	b := Budget{start: start, total: 10 * time.Second, now: func() time.Time { return now }}

	s.Equal(10*time.Second, b.Remaining())
	s.Equal(10*time.Second, b.Bound(Options{}).TotalTimeout)
	s.Equal(5*time.Second, b.Bound(Options{TotalTimeout: 5 * time.Second}).TotalTimeout)

	now = start.Add(7 * time.Second)
	s.Equal(3*time.Second, b.Remaining())
	s.Equal(3*time.Second, b.Bound(Options{TotalTimeout: 5 * time.Second}).TotalTimeout)

	now = start.Add(12 * time.Second)
	s.Equal(time.Duration(0), b.Remaining())
	s.Equal(time.Duration(0), b.Bound(Options{TotalTimeout: 5 * time.Second}).TotalTimeout)
}
