package scheduler

import (
	"context"
	"sync/atomic"
	"time"
)

// Phase is the lifecycle position of a Loop.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseDraining
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopSignal is the cooperative cancellation token loops check between iterations.
type StopSignal interface {
	Stopped() bool
	Done() <-chan struct{}
}

// Task is one iteration of a loop. It is never interrupted by the stop signal.
type Task func(ctx context.Context)

// Loop runs a task back to back, spacing iteration starts by interval when the
// task is faster than that.
type Loop struct {
	name     string
	interval time.Duration
	stop     StopSignal
	task     Task

	phase      atomic.Int32
	iterations atomic.Uint64
}

func NewLoop(name string, interval time.Duration, stop StopSignal, task Task) *Loop {
	return &Loop{name: name, interval: interval, stop: stop, task: task}
}

func (l *Loop) Name() string {
	return l.name
}

func (l *Loop) Iterations() uint64 {
	return l.iterations.Load()
}

// Phase reports Draining while an iteration started before the stop signal is still running.
func (l *Loop) Phase() Phase {
	p := Phase(l.phase.Load())
	if p == PhaseRunning && l.stop.Stopped() {
		return PhaseDraining
	}

	return p
}

// Run blocks until the stop signal is observed at an iteration boundary or ctx ends.
func (l *Loop) Run(ctx context.Context) {
	defer l.phase.Store(int32(PhaseStopped))

	for {
		if l.stop.Stopped() || ctx.Err() != nil {
			return
		}

		l.phase.Store(int32(PhaseRunning))
		start := time.Now()
		l.task(ctx)
		l.iterations.Add(1)
		l.phase.Store(int32(PhaseIdle))

		if !l.sleep(ctx, Remaining(l.interval, time.Since(start))) {
			return
		}
	}
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-l.stop.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// Remaining returns max(0, interval - elapsed).
func Remaining(interval, elapsed time.Duration) time.Duration {
	return max(0, interval-elapsed)
}
