package api

import (
	"log/slog"
	"time"

	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware that sets standard security response
// headers. Framing is not denied outright: tenant chat widgets embed the
// session UI in iframes.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}

// requestLogger logs one line per request with method, path and duration.
// WebSocket upgrades are skipped; their lifetime is logged by the
// connection manager.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			req := c.Request()
			if req.URL.Path == "/api/v1/ws" {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				attrs = append(attrs, "error", err)
			}
			logger.Info("request", attrs...)
			return err
		}
	}
}
