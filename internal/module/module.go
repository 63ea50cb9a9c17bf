package module

import (
	"context"

	"github.com/labstack/echo/v4"
)

// Module is a self-contained feature hosted by the server.
type Module interface {
	// Name returns a unique identifier for the module.
	Name() string

	// Boot subscribes the module to the bus, mounts its routes under router
	// and starts any background work.
	Boot(ctx context.Context, router *echo.Group) error

	// Shutdown stops background work. It runs once, during graceful shutdown.
	Shutdown(ctx context.Context) error
}

// BaseModule provides no-op lifecycle methods for embedding.
type BaseModule struct{}

func (m *BaseModule) Boot(ctx context.Context, router *echo.Group) error { return nil }
func (m *BaseModule) Shutdown(ctx context.Context) error                 { return nil }
