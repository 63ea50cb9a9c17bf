package server

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterRoutes sets up the framework routes.
func (s *Server) RegisterRoutes() {
	s.E.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	// The default gatherer carries the node's collectors and the Go runtime.
	s.E.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: prometheus.Gatherers{s.metrics, prometheus.DefaultGatherer},
	}))

	if s.hub != nil {
		s.E.GET("/ws/events", s.serveEvents)
	}
}
