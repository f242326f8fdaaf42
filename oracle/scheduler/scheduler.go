package scheduler

import (
	"context"
	"fmt"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/GPTx-global/feedkeeper/oracle/log"
)

// Scheduler owns every long running loop of the process.
type Scheduler struct {
	wg    sync.WaitGroup
	loops cmap.ConcurrentMap[string, *Loop]
}

func New() *Scheduler {
	return &Scheduler{
		loops: cmap.New[*Loop](),
	}
}

// Add registers a loop. Loop names are unique.
func (s *Scheduler) Add(l *Loop) error {
	if !s.loops.SetIfAbsent(l.Name(), l) {
		return fmt.Errorf("loop already registered: %s", l.Name())
	}

	return nil
}

// Start launches every registered loop in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	for item := range s.loops.IterBuffered() {
		s.wg.Add(1)
		go func(l *Loop) {
			defer s.wg.Done()

			log.Debugf("loop %s started", l.Name())
			l.Run(ctx)
			log.Debugf("loop %s stopped after %d iterations", l.Name(), l.Iterations())
		}(item.Val)
	}
}

// Wait blocks until every loop has stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) Len() int {
	return s.loops.Count()
}

// Phases returns the current phase of every loop, keyed by loop name.
func (s *Scheduler) Phases() map[string]Phase {
	out := make(map[string]Phase, s.loops.Count())
	for item := range s.loops.IterBuffered() {
		out[item.Key] = item.Val.Phase()
	}

	return out
}
