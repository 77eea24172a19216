package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// CreateSessionRequest is the body for POST /tenants/:tenant_id/sessions.
type CreateSessionRequest struct {
	ChatUserID string `json:"chat_user_id"`
}

// createSessionHandler handles POST /api/v1/tenants/:tenant_id/sessions.
func (s *Server) createSessionHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")

	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := s.sessions.CreateSession(c.Request().Context(), tenantID, req.ChatUserID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, session)
}

// getSessionHandler handles GET /api/v1/tenants/:tenant_id/sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	session, err := s.sessions.GetSession(c.Request().Context(), tenantID, sessionID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, session)
}

// listMessagesHandler handles GET /api/v1/tenants/:tenant_id/sessions/:id/messages.
func (s *Server) listMessagesHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	sessionID := c.Param("id")

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be between 1 and 500")
		}
		limit = n
	}

	messages, err := s.sessions.ListMessages(c.Request().Context(), tenantID, sessionID, limit)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   messages,
	})
}

// listTenantAgentsHandler handles GET /api/v1/tenants/:tenant_id/agents.
// It returns only agents resolved for the tenant; globally registered but
// unpermitted agents are invisible.
func (s *Server) listTenantAgentsHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")

	grants, err := s.resolver.ResolveAgents(c.Request().Context(), tenantID)
	if err != nil {
		return mapServiceError(err)
	}

	type agentView struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}
	agents := make([]agentView, 0, len(grants))
	for _, g := range grants {
		agents = append(agents, agentView{Name: g.Agent.Name, Description: g.Agent.Description})
	}
	return c.JSON(http.StatusOK, map[string]any{"agents": agents})
}
