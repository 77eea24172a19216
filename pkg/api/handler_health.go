package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/convoflow/convoflow/pkg/database"
)

// healthHandler handles GET /healthz.
func (s *Server) healthHandler(c *echo.Context) error {
	if s.db == nil {
		return c.JSON(http.StatusOK, map[string]any{"status": "healthy"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.Pool())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "healthy",
		"database": dbHealth,
	})
}
