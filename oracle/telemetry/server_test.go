package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/feedkeeper/oracle/health"
	"github.com/GPTx-global/feedkeeper/oracle/scheduler"
)

type staticLoops map[string]scheduler.Phase

func (l staticLoops) Phases() map[string]scheduler.Phase { return l }

type ServerTestSuite struct {
	suite.Suite
	checker *health.Checker
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) SetupTest() {
	s.Require().NoError(InitMetrics())
	s.checker = health.NewChecker(time.Second)
}

func (s *ServerTestSuite) get(path string) *httptest.ResponseRecorder {
	srv := NewServer("127.0.0.1:0", s.checker, staticLoops{"fetch/0x01": scheduler.PhaseRunning, "update/1/a/0x02": scheduler.PhaseIdle})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (s *ServerTestSuite) TestHealth_Healthy() {
	s.checker.AddCheck(health.NewFuncCheck("rpc/1/a", func(ctx context.Context) error { return nil }))
	s.checker.RunChecks(context.Background())

	rec := s.get(HealthPath)

	s.Equal(http.StatusOK, rec.Code)
	var resp HealthResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.True(resp.Healthy)
	s.True(resp.Checks["rpc/1/a"].Healthy)
	s.Equal("running", resp.Loops["fetch/0x01"])
	s.Equal("idle", resp.Loops["update/1/a/0x02"])
}

func (s *ServerTestSuite) TestHealth_Unhealthy() {
	s.checker.AddCheck(health.NewFuncCheck("rpc/1/a", func(ctx context.Context) error { return errors.New("connection refused") }))
	s.checker.RunChecks(context.Background())

	rec := s.get(HealthPath)

	s.Equal(http.StatusServiceUnavailable, rec.Code)
	var resp HealthResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.False(resp.Healthy)
	s.Equal("connection refused", resp.Checks["rpc/1/a"].LastError)
}

func (s *ServerTestSuite) TestMetrics() {
	IncrCounter(MetricKeyFetchSuccess)

	rec := s.get(MetricsPath)

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "feedkeeper")
}

func (s *ServerTestSuite) TestStartAndShutdown() {
	srv := NewServer("127.0.0.1:0", s.checker, staticLoops{})

	s.Require().NoError(srv.Start())
	s.NoError(srv.Shutdown(context.Background()))
}
