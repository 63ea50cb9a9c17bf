// Package app wires the service together with a samber/do container and runs
// it until its context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nfrund/conftimeout/internal/config"
	"github.com/nfrund/conftimeout/internal/hub"
	"github.com/nfrund/conftimeout/internal/logging"
	"github.com/nfrund/conftimeout/internal/module"
	"github.com/nfrund/conftimeout/internal/node"
	"github.com/nfrund/conftimeout/internal/pubsub"
	"github.com/nfrund/conftimeout/internal/server"
	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"
)

// Tracing is the bus tracer together with its flush func.
type Tracing struct {
	Tracer trace.Tracer
	flush  func(context.Context) error
}

// Close flushes pending spans.
func (t *Tracing) Close(ctx context.Context) error {
	return t.flush(ctx)
}

// hubRunner owns the hub goroutine.
type hubRunner struct {
	hub    *hub.Hub
	cancel context.CancelFunc
}

// App is the assembled service.
type App struct {
	injector *do.RootScope
	cfg      *config.Config
}

// New registers every service provider. Nothing is constructed until it is
// first invoked.
func New(cfg *config.Config) *App {
	injector := do.New()

	do.ProvideValue(injector, cfg)

	do.Provide(injector, func(i do.Injector) (*slog.Logger, error) {
		c := do.MustInvoke[*config.Config](i)
		return logging.New(c.Log.Format, c.Log.Level), nil
	})

	do.Provide(injector, func(i do.Injector) (*Tracing, error) {
		do.MustInvoke[*slog.Logger](i)
		tracer, flush, err := pubsub.SetupTracing(context.Background(), pubsub.LoadTracingConfigFromEnv())
		if err != nil {
			return nil, fmt.Errorf("setup tracing: %w", err)
		}
		return &Tracing{Tracer: tracer, flush: flush}, nil
	})

	do.Provide(injector, func(i do.Injector) (*pubsub.WatermillBridge, error) {
		c := do.MustInvoke[*config.Config](i)
		tr := do.MustInvoke[*Tracing](i)
		return pubsub.NewWatermillBridge(
			pubsub.WithTracer(tr.Tracer),
			pubsub.WithBufferSize(c.Bus.BufferSize),
			pubsub.WithDebugLogging(c.Bus.Debug),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*hubRunner, error) {
		do.MustInvoke[*slog.Logger](i)
		ctx, cancel := context.WithCancel(context.Background())
		h := hub.NewHub()
		go h.Run(ctx)
		return &hubRunner{hub: h, cancel: cancel}, nil
	})

	do.Provide(injector, func(i do.Injector) (*node.Node, error) {
		c := do.MustInvoke[*config.Config](i)
		bus := do.MustInvoke[*pubsub.WatermillBridge](i)
		hr := do.MustInvoke[*hubRunner](i)
		return node.New(node.Dependencies{
			Publisher:  bus,
			Subscriber: bus,
			Hub:        hr.hub,
		}, node.ConfigFrom(c.Timeout)), nil
	})

	do.Provide(injector, func(i do.Injector) (*server.Server, error) {
		c := do.MustInvoke[*config.Config](i)
		hr := do.MustInvoke[*hubRunner](i)
		n := do.MustInvoke[*node.Node](i)
		return server.New(c.HTTP, server.Dependencies{
			Hub:     hr.hub,
			Modules: []module.Module{n},
		}), nil
	})

	return &App{injector: injector, cfg: cfg}
}

// Server builds (once) and returns the HTTP server.
func (a *App) Server() (*server.Server, error) {
	return do.Invoke[*server.Server](a.injector)
}

// Node builds (once) and returns the timeout node.
func (a *App) Node() (*node.Node, error) {
	return do.Invoke[*node.Node](a.injector)
}

// Bus builds (once) and returns the message bus.
func (a *App) Bus() (*pubsub.WatermillBridge, error) {
	return do.Invoke[*pubsub.WatermillBridge](a.injector)
}

// Run boots the modules, serves until ctx is cancelled and then tears
// everything down: HTTP, modules, hub, bus, tracing.
func (a *App) Run(ctx context.Context) error {
	srv, err := a.Server()
	if err != nil {
		return err
	}

	// Subscriptions stop with the bus, not with ctx, so the registry can
	// still emit its final status during shutdown.
	if err := srv.Boot(context.WithoutCancel(ctx)); err != nil {
		a.Close(context.Background())
		return err
	}

	runErr := srv.Start(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Close(closeCtx))
}

// Close stops the hub, closes the bus and flushes the tracer, then shuts the
// container down.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if hr, err := do.Invoke[*hubRunner](a.injector); err == nil {
		hr.cancel()
		<-hr.hub.Done()
	}
	if bus, err := do.Invoke[*pubsub.WatermillBridge](a.injector); err == nil {
		if err := bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
	}
	if tr, err := do.Invoke[*Tracing](a.injector); err == nil {
		if err := tr.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush traces: %w", err))
		}
	}

	a.injector.Shutdown()
	return errors.Join(errs...)
}
