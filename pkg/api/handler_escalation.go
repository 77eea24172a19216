package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/convoflow/convoflow/pkg/models"
)

// EscalateRequest is the body for POST /tenants/:tenant_id/sessions/:id/escalate.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

// EscalateResponse is shown to chat users, so the message is
// natural-language, not an entity dump.
type EscalateResponse struct {
	Success          bool                    `json:"success"`
	EscalationStatus models.EscalationStatus `json:"escalation_status"`
	Message          string                  `json:"message"`
}

// escalateHandler handles POST /api/v1/tenants/:tenant_id/sessions/:id/escalate.
// Chat users call this to request a human; repeated requests while pending
// succeed idempotently.
func (s *Server) escalateHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	sessionID := c.Param("id")

	var req EscalateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := s.escalations.Escalate(c.Request().Context(), tenantID, sessionID, req.Reason)
	if err != nil {
		return mapServiceError(err)
	}

	msg := "Your request has been forwarded to our support team. A supporter will be with you shortly."
	if session.EscalationStatus == models.EscalationAssigned {
		msg = "A supporter has been assigned to your conversation and will reply here."
	}
	return c.JSON(http.StatusOK, EscalateResponse{
		Success:          true,
		EscalationStatus: session.EscalationStatus,
		Message:          msg,
	})
}

// AssignRequest is the body for POST /tenants/:tenant_id/sessions/:id/assign.
type AssignRequest struct {
	SupporterID string `json:"supporter_id"`
}

// assignHandler handles POST /api/v1/tenants/:tenant_id/sessions/:id/assign.
func (s *Server) assignHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	sessionID := c.Param("id")

	var req AssignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SupporterID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "supporter_id is required")
	}

	session, err := s.escalations.Assign(c.Request().Context(), tenantID, sessionID, req.SupporterID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, session)
}

// ResolveRequest is the body for POST /tenants/:tenant_id/sessions/:id/resolve.
type ResolveRequest struct {
	Notes string `json:"notes,omitempty"`
}

// resolveHandler handles POST /api/v1/tenants/:tenant_id/sessions/:id/resolve.
func (s *Server) resolveHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	sessionID := c.Param("id")

	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := s.escalations.Resolve(c.Request().Context(), tenantID, sessionID, req.Notes)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, session)
}

// escalationQueueHandler handles GET /api/v1/tenants/:tenant_id/escalations.
func (s *Server) escalationQueueHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")

	var status models.EscalationStatus
	if v := c.QueryParam("status"); v != "" {
		status = models.EscalationStatus(v)
		if !status.Valid() || status == models.EscalationNone {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status: must be pending, assigned, or resolved")
		}
	}

	// One unfiltered fetch serves both the listing and the per-status
	// counts supporter dashboards show next to the queue.
	sessions, err := s.escalations.Queue(c.Request().Context(), tenantID, "")
	if err != nil {
		return mapServiceError(err)
	}

	counts := map[models.EscalationStatus]int{}
	for _, session := range sessions {
		counts[session.EscalationStatus]++
	}

	if status != "" {
		filtered := sessions[:0]
		for _, session := range sessions {
			if session.EscalationStatus == status {
				filtered = append(filtered, session)
			}
		}
		sessions = filtered
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions, "counts": counts})
}
