// Package server exposes the tokendesk service tier over HTTP: the token data
// routes backed by the market-data gateway, and the trade routes backed by the
// fee estimator and trade executor.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tokendesk/marketdata"
	"tokendesk/trade"
)

const defaultTrendingLimit = 25

// Config is the HTTP surface configuration. ProviderConfigured reflects
// whether a data-provider API key is present; when false every data route
// fails closed with a 500 instead of proxying unauthenticated calls.
type Config struct {
	ListenAddress      string
	ProviderConfigured bool
	ChainID            int64
	TrendingLimit      int
	RequestsPerMinute  float64
	Burst              int
	ShutdownGrace      time.Duration
}

// Server serves the tokendesk routes. Estimator and Executor may be nil when
// no SDK binding is wired; the trade routes then answer 503.
type Server struct {
	cfg       Config
	markets   *marketdata.Gateway
	estimator *trade.Estimator
	executor  *trade.Executor
	log       *slog.Logger
}

// New validates the collaborators and returns a server ready to Run.
func New(cfg Config, markets *marketdata.Gateway, estimator *trade.Estimator, executor *trade.Executor, log *slog.Logger) (*Server, error) {
	if markets == nil {
		return nil, errors.New("server: market-data gateway is required")
	}
	if cfg.TrendingLimit <= 0 {
		cfg.TrendingLimit = defaultTrendingLimit
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, markets: markets, estimator: estimator, executor: executor, log: log}, nil
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	if s.cfg.RequestsPerMinute > 0 {
		r.Use(newClientLimiter(s.cfg.RequestsPerMinute, s.cfg.Burst).middleware)
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/token", func(r chi.Router) {
		r.Get("/balance", s.handleBalance)
		r.Get("/metadata", s.handleMetadata)
		r.Get("/price", s.handlePrice)
		r.Get("/price-history", s.handlePriceHistory)
		r.Get("/trending", s.handleTrending)
	})
	r.Route("/trade", func(r chi.Router) {
		r.Post("/estimate", s.handleEstimate)
		r.Post("/execute", s.handleExecute)
	})

	return otelhttp.NewHandler(r, "tokendesk.http")
}

// Run serves until ctx is cancelled, then drains in-flight requests within
// the shutdown grace window.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("http server listening", "addr", s.cfg.ListenAddress)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen on %s: %w", s.cfg.ListenAddress, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start).String(),
		)
	})
}
