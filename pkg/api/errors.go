package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/convoflow/convoflow/pkg/escalation"
	"github.com/convoflow/convoflow/pkg/services"
	"github.com/convoflow/convoflow/pkg/store"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, escalation.ErrReasonRequired) {
		return echo.NewHTTPError(http.StatusBadRequest, "escalation reason is required")
	}
	// Unpermitted and nonexistent resources are indistinguishable on purpose.
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, services.ErrTenantInactive) {
		return echo.NewHTTPError(http.StatusForbidden, "tenant is not active")
	}
	if errors.Is(err, escalation.ErrInvalidTransition) || errors.Is(err, store.ErrConflict) {
		return echo.NewHTTPError(http.StatusConflict, "session is not in a valid state for this operation")
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
