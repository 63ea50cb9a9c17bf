package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// setupErrorHandling installs an error handler that logs unhandled errors with
// a stack trace. Errors raised as *echo.HTTPError are expected and only
// logged at debug level.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			slog.Debug("HTTP error",
				"status", he.Code,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"error", err)
		} else {
			slog.Error("Internal Server Error (Unhandled)",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"error", err,
				"stack_trace", string(debug.Stack()))
			he = echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, map[string]any{"message": he.Message})
		}
		if err != nil {
			slog.Error("Failed to write error response", "error", err)
		}
	}
}
