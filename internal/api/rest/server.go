package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianpay/risk-engine/internal/infrastructure/config"
)

// Server is the HTTP front end of the risk engine
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
}

// ServerDeps collects everything the router needs. AlertFeed is optional;
// when nil the /ws/alerts endpoint is not registered.
type ServerDeps struct {
	Handler   *Handler
	AlertFeed http.Handler
	// Extra middlewares applied outermost-first before the built-in chain
	Extra []Middleware
}

func NewServer(cfg *config.Config, deps ServerDeps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	h := deps.Handler
	mux.HandleFunc("POST /api/v1/analyses", h.AnalyzeTransaction)
	mux.HandleFunc("GET /api/v1/analyses/{id}", h.GetAnalysis)
	mux.HandleFunc("POST /api/v1/analyses/{id}/false-positive", h.MarkFalsePositive)
	mux.HandleFunc("GET /api/v1/statistics", h.GetStatistics)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	if deps.AlertFeed != nil {
		mux.Handle("GET /ws/alerts", deps.AlertFeed)
	}

	chain := []Middleware{
		requestIDMiddleware,
		loggingMiddleware(logger),
		recoveryMiddleware(logger),
		rateLimitMiddleware(cfg.Security.RateLimit.RequestsPerSecond, cfg.Security.RateLimit.BurstSize),
		authMiddleware(cfg.Security.JWTSecret, logger),
	}
	chain = append(deps.Extra, chain...)

	// Apply in reverse so the first entry is the outermost wrapper
	var handler http.Handler = mux
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		logger: logger,
	}
}

// Start serves until the context is canceled, then drains in-flight
// requests within the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down",
		slog.Duration("timeout", s.cfg.Server.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
