// Package metrics serves the run's Prometheus registry over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes /metrics and /healthz while a warm run is in progress.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
	done     chan struct{}
}

// NewServer binds addr and prepares the router. The registry must also be the
// one the progress sinks register with.
func NewServer(addr string, reg *prometheus.Registry, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &Server{
		srv: &http.Server{
			Handler:           Router(reg),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Router builds the chi routes for a registry.
func Router(reg *prometheus.Registry) http.Handler {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_warmer_http_requests_total",
		Help: "Requests served by the metrics endpoint, labeled by route and code.",
	}, []string{"route", "code"})
	// Registration fails only when the router is built twice on one registry.
	if err := reg.Register(requests); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				requests = existing
			}
		}
	}

	r := chi.NewRouter()
	r.Use(Middleware(requests))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Addr reports the bound address, useful when addr used port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		defer close(s.done)
		s.logger.Info("metrics server started", zap.String("addr", s.Addr()))
		if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

// Shutdown stops the server and waits for the serve loop to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown metrics server: %w", ctx.Err())
	}
	return nil
}
