package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type testSignal struct {
	once sync.Once
	flag atomic.Bool
	done chan struct{}
}

func newTestSignal() *testSignal {
	return &testSignal{done: make(chan struct{})}
}

func (t *testSignal) Stop() {
	t.once.Do(func() {
		t.flag.Store(true)
		close(t.done)
	})
}

func (t *testSignal) Stopped() bool         { return t.flag.Load() }
func (t *testSignal) Done() <-chan struct{} { return t.done }

// SchedulerTestSuite defines the test suite for loops and the scheduler
type SchedulerTestSuite struct {
	suite.Suite
	signal *testSignal
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (suite *SchedulerTestSuite) SetupTest() {
	suite.signal = newTestSignal()
}

// TestRemaining tests the inter-iteration wait arithmetic
func (suite *SchedulerTestSuite) TestRemaining() {
	suite.Equal(300*time.Millisecond, Remaining(time.Second, 700*time.Millisecond))
	suite.Equal(time.Duration(0), Remaining(time.Second, time.Second))
	suite.Equal(time.Duration(0), Remaining(time.Second, 3*time.Second))
}

// TestLoop_NotStartedWhenStopped tests that a stopped signal prevents any iteration
func (suite *SchedulerTestSuite) TestLoop_NotStartedWhenStopped() {
	suite.signal.Stop()

	var calls atomic.Int32
	l := NewLoop("beacon", time.Millisecond, suite.signal, func(ctx context.Context) { calls.Add(1) })
	l.Run(context.Background())

	suite.Equal(int32(0), calls.Load())
	suite.Equal(PhaseStopped, l.Phase())
}

// TestLoop_Spacing tests that fast iterations are spaced by the interval
func (suite *SchedulerTestSuite) TestLoop_Spacing() {
	var calls atomic.Int32
	l := NewLoop("beacon", 100*time.Millisecond, suite.signal, func(ctx context.Context) { calls.Add(1) })

	go func() {
		time.Sleep(250 * time.Millisecond)
		suite.signal.Stop()
	}()
	l.Run(context.Background())

	suite.Equal(int32(3), calls.Load())
	suite.Equal(uint64(3), l.Iterations())
}

// TestLoop_DrainsInFlightIteration tests that stop never interrupts a running iteration
func (suite *SchedulerTestSuite) TestLoop_DrainsInFlightIteration() {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	l := NewLoop("update", time.Hour, suite.signal, func(ctx context.Context) {
		close(started)
		<-release
		finished.Store(true)
	})

	done := make(chan struct{})
	go func() {
		l.Run(context.Background())
		close(done)
	}()

	<-started
	suite.Equal(PhaseRunning, l.Phase())

	suite.signal.Stop()
	suite.Equal(PhaseDraining, l.Phase())

	close(release)
	<-done

	suite.True(finished.Load())
	suite.Equal(PhaseStopped, l.Phase())
}

// TestLoop_StopWakesSleep tests that the inter-iteration wait ends on stop
func (suite *SchedulerTestSuite) TestLoop_StopWakesSleep() {
	l := NewLoop("update", time.Hour, suite.signal, func(ctx context.Context) {})

	done := make(chan struct{})
	go func() {
		l.Run(context.Background())
		close(done)
	}()

	suite.Eventually(func() bool { return l.Phase() == PhaseIdle && l.Iterations() == 1 }, time.Second, 5*time.Millisecond)
	suite.signal.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		suite.Fail("loop did not stop")
	}
}

// TestScheduler tests registration, phases and wait
func (suite *SchedulerTestSuite) TestScheduler() {
	s := New()

	suite.Require().NoError(s.Add(NewLoop("a", 10*time.Millisecond, suite.signal, func(ctx context.Context) {})))
	suite.Require().NoError(s.Add(NewLoop("b", 10*time.Millisecond, suite.signal, func(ctx context.Context) {})))
	suite.Require().Error(s.Add(NewLoop("a", time.Second, suite.signal, func(ctx context.Context) {})))
	suite.Equal(2, s.Len())

	phases := s.Phases()
	suite.Equal(PhaseIdle, phases["a"])

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	suite.signal.Stop()
	s.Wait()

	for name, phase := range s.Phases() {
		suite.Equal(PhaseStopped, phase, name)
	}
}
