package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/GPTx-global/feedkeeper/oracle/health"
	"github.com/GPTx-global/feedkeeper/oracle/log"
	"github.com/GPTx-global/feedkeeper/oracle/scheduler"
)

const (
	HealthPath  = "/health"
	MetricsPath = "/metrics"
)

type HealthSource interface {
	IsHealthy() bool
	GetStatus() map[string]health.Status
}

type LoopSource interface {
	Phases() map[string]scheduler.Phase
}

// HealthResponse is the body served at HealthPath.
type HealthResponse struct {
	Healthy bool                     `json:"healthy"`
	Checks  map[string]health.Status `json:"checks"`
	Loops   map[string]string        `json:"loops"`
}

// Server exposes health and prometheus metrics over HTTP.
type Server struct {
	server *http.Server
	health HealthSource
	loops  LoopSource
}

func NewServer(addr string, hs HealthSource, loops LoopSource) *Server {
	s := &Server{health: hs, loops: loops}

	router := mux.NewRouter()
	router.HandleFunc(HealthPath, s.handleHealth).Methods(http.MethodGet)
	router.Handle(MetricsPath, promhttp.Handler()).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           cors.Default().Handler(router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	log.Infof("Status server listening on %s", ln.Addr())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Status server stopped: %v", err)
		}
	}()

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Healthy: s.health.IsHealthy(),
		Checks:  s.health.GetStatus(),
		Loops:   map[string]string{},
	}
	for name, phase := range s.loops.Phases() {
		resp.Loops[name] = phase.String()
	}

	code := http.StatusOK
	if !resp.Healthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Debugf("failed to write health response: %v", err)
	}
}
