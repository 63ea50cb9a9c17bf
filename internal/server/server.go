// Package server hosts the HTTP surface: module routes under /api, health and
// metrics endpoints, and the websocket event feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/conftimeout/internal/config"
	"github.com/nfrund/conftimeout/internal/hub"
	mw "github.com/nfrund/conftimeout/internal/middleware"
	"github.com/nfrund/conftimeout/internal/module"
	"github.com/prometheus/client_golang/prometheus"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// Dependencies holds what the server hosts.
type Dependencies struct {
	Hub     *hub.Hub
	Modules []module.Module
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E       *echo.Echo
	cfg     config.HTTPConfig
	hub     *hub.Hub
	modules []module.Module
	metrics *prometheus.Registry
	logger  *slog.Logger
}

// New creates a server and mounts the framework routes. Modules are mounted
// by Boot.
func New(cfg config.HTTPConfig, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	// Each server gets its own registry so the echo collectors can be
	// registered more than once per process.
	reg := prometheus.NewRegistry()
	logger := slog.Default().With("service", "server")

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(mw.RequestLogger(logger))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "conftimeout",
		Subsystem:  "http",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/ws/events"
		},
	}))
	setupErrorHandling(e)

	s := &Server{
		E:       e,
		cfg:     cfg,
		hub:     deps.Hub,
		modules: deps.Modules,
		metrics: reg,
		logger:  logger,
	}
	s.RegisterRoutes()
	return s
}

// Boot boots every module in order, giving each the rate-limited /api group.
func (s *Server) Boot(ctx context.Context) error {
	api := s.E.Group("/api", mw.RateLimiter(s.cfg.RateLimit))
	for _, m := range s.modules {
		s.logger.Info("Booting module", "module", m.Name())
		if err := m.Boot(ctx, api); err != nil {
			return fmt.Errorf("boot module %s: %w", m.Name(), err)
		}
	}
	return nil
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		if err := s.E.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var startErr error
	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		// Modules were booted before the listener failed; stop them anyway.
		startErr = fmt.Errorf("http server: %w", err)
		s.logger.Error("HTTP server failed", "error", err)
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(startErr, s.Stop(shutdownCtx))
}

// Stop drains HTTP connections, then shuts modules down in reverse boot
// order.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	for i := len(s.modules) - 1; i >= 0; i-- {
		m := s.modules[i]
		if err := m.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown module %s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}
