package middleware

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
)

type loggerKey struct{}

// RequestLogger stores a child of base in the request context, tagged with the
// request ID, method, route and client IP. Place it after middleware.RequestID.
// A nil base means slog.Default at request time.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			logger := base
			if logger == nil {
				logger = slog.Default()
			}

			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			if reqID == "" {
				reqID = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			logger = logger.With(
				"request_id", reqID,
				"method", c.Request().Method,
				"route", c.Path(),
				"client", c.RealIP(),
			)

			c.SetRequest(c.Request().WithContext(WithLogger(c.Request().Context(), logger)))
			return next(c)
		}
	}
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
