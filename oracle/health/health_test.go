package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type HealthTestSuite struct {
	suite.Suite
}

func TestHealthTestSuite(t *testing.T) {
	suite.Run(t, new(HealthTestSuite))
}

func (suite *HealthTestSuite) TestAddCheck_HealthyUntilRun() {
	hc := NewChecker(time.Second)
	hc.AddCheck(NewFuncCheck("failing", func(ctx context.Context) error { return errors.New("down") }))

	suite.True(hc.IsHealthy())
	suite.Contains(hc.GetStatus(), "failing")
}

func (suite *HealthTestSuite) TestRunChecks() {
	hc := NewChecker(time.Second)
	hc.AddCheck(NewFuncCheck("ok", func(ctx context.Context) error { return nil }))
	hc.AddCheck(NewFuncCheck("failing", func(ctx context.Context) error { return errors.New("down") }))

	hc.RunChecks(context.Background())

	status := hc.GetStatus()
	suite.True(status["ok"].Healthy)
	suite.Empty(status["ok"].LastError)
	suite.False(status["failing"].Healthy)
	suite.Equal("down", status["failing"].LastError)
	suite.False(hc.IsHealthy())
}

func (suite *HealthTestSuite) TestRunChecks_Timeout() {
	hc := NewChecker(50 * time.Millisecond)
	hc.AddCheck(NewFuncCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	hc.RunChecks(context.Background())

	suite.False(hc.GetStatus()["slow"].Healthy)
}

func (suite *HealthTestSuite) TestStart_StopsWithContext() {
	var runs atomic.Int32
	hc := NewChecker(10 * time.Millisecond)
	hc.AddCheck(NewFuncCheck("counter", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hc.Start(ctx)
		close(done)
	}()

	suite.Eventually(func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		suite.Fail("health checker did not stop")
	}
}
