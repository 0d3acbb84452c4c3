// Package api exposes the liveness and availability admin endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/graphinventory/internal/availability"
	"github.com/rohankatakam/graphinventory/internal/metrics"
)

// Server serves the HTTP surface over one availability checker
type Server struct {
	checker *availability.Checker
	metrics *metrics.Metrics
	limiter *rate.Limiter
	logger  *slog.Logger
	router  *httprouter.Router
}

// Option configures a Server
type Option func(*Server)

// WithMetrics serves m's registry on /metrics instead of the global one
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithActualProbeLimit bounds how often clients may force a fresh probe.
// perSecond <= 0 removes the bound.
func WithActualProbeLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger replaces the component logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server; ACTUAL probes default to one per second, burst 3
func NewServer(checker *availability.Checker, opts ...Option) *Server {
	s := &Server{
		checker: checker,
		limiter: rate.NewLimiter(rate.Limit(1), 3),
		logger:  slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	m := httprouter.New()
	m.GET("/healthz", s.healthz)
	m.POST("/admin/availability/clear", s.clearAvailability)
	if s.metrics != nil {
		m.Handler(http.MethodGet, "/metrics", s.metrics.Handler())
	} else {
		m.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	}
	s.router = m
	return s
}

// Handler returns the routed handler with request logging
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path)
		s.router.ServeHTTP(w, r)
	})
}

// Run listens on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return err
	}
	s.logger.Info("http server stopped", "addr", addr)
	return nil
}
