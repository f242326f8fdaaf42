package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GPTx-global/feedkeeper/oracle/chain"
	"github.com/GPTx-global/feedkeeper/oracle/log"
)

// Check is one health probe.
type Check interface {
	Check(ctx context.Context) error
	Name() string
}

// Status is the outcome of the last run of one check.
type Status struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Checker runs its checks periodically and keeps their last status.
type Checker struct {
	mutex    sync.RWMutex
	checks   map[string]Check
	status   map[string]Status
	interval time.Duration
	timeout  time.Duration
}

func NewChecker(interval time.Duration) *Checker {
	return &Checker{
		checks:   make(map[string]Check),
		status:   make(map[string]Status),
		interval: interval,
		timeout:  interval,
	}
}

// AddCheck registers check. It reports healthy until its first run.
func (hc *Checker) AddCheck(check Check) {
	hc.mutex.Lock()
	defer hc.mutex.Unlock()

	name := check.Name()
	hc.checks[name] = check
	hc.status[name] = Status{Healthy: true, LastCheck: time.Now()}

	log.Debugf("Added health check: %s", name)
}

// Start runs every check immediately and then once per interval until ctx ends.
func (hc *Checker) Start(ctx context.Context) {
	log.Debugf("Health checker started, interval: %v", hc.interval)

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	hc.RunChecks(ctx)

	for {
		select {
		case <-ticker.C:
			hc.RunChecks(ctx)
		case <-ctx.Done():
			log.Debugf("Health checker stopped: %v", ctx.Err())
			return
		}
	}
}

// RunChecks runs all checks concurrently and waits for them.
func (hc *Checker) RunChecks(ctx context.Context) {
	hc.mutex.RLock()
	checks := make([]Check, 0, len(hc.checks))
	for _, check := range hc.checks {
		checks = append(checks, check)
	}
	hc.mutex.RUnlock()

	var wg sync.WaitGroup
	for _, check := range checks {
		check := check
		wg.Add(1)
		go func() {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, hc.timeout)
			defer cancel()

			err := check.Check(cctx)
			status := Status{Healthy: err == nil, LastCheck: time.Now()}
			if err != nil {
				status.LastError = err.Error()
				log.Warnf("Health check failed - %s: %v", check.Name(), err)
			}

			hc.mutex.Lock()
			hc.status[check.Name()] = status
			hc.mutex.Unlock()
		}()
	}
	wg.Wait()
}

func (hc *Checker) GetStatus() map[string]Status {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()

	result := make(map[string]Status, len(hc.status))
	for name, status := range hc.status {
		result[name] = status
	}

	return result
}

func (hc *Checker) IsHealthy() bool {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()

	for _, status := range hc.status {
		if !status.Healthy {
			return false
		}
	}

	return true
}

// FuncCheck adapts a function to Check.
type FuncCheck struct {
	name      string
	checkFunc func(ctx context.Context) error
}

func NewFuncCheck(name string, checkFunc func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, checkFunc: checkFunc}
}

func (f *FuncCheck) Check(ctx context.Context) error {
	return f.checkFunc(ctx)
}

func (f *FuncCheck) Name() string {
	return f.name
}

// NewRPCCheck probes a provider by reading its block number.
func NewRPCCheck(chainID, providerName string, provider chain.Provider) *FuncCheck {
	return NewFuncCheck(fmt.Sprintf("rpc/%s/%s", chainID, providerName), func(ctx context.Context) error {
		if _, err := provider.BlockNumber(ctx); err != nil {
			return fmt.Errorf("failed to get block number: %w", err)
		}
		return nil
	})
}
