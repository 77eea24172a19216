package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// SendMessageRequest is the body for POST /tenants/:tenant_id/sessions/:id/messages.
// Agent, when set, pins the turn to that agent by name and skips intent
// classification.
type SendMessageRequest struct {
	Content string `json:"content"`
	Agent   string `json:"agent,omitempty"`
}

// sendMessageHandler handles POST /api/v1/tenants/:tenant_id/sessions/:id/messages.
func (s *Server) sendMessageHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	result, err := s.chat.HandleMessage(c.Request().Context(), tenantID, sessionID, req.Content, req.Agent, nil)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// ChatRequest is the body for POST /tenants/:tenant_id/chat. SessionID is
// optional; when absent a new session is created for UserID.
type ChatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id"`
	Agent     string         `json:"agent_name,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// chatHandler handles POST /api/v1/tenants/:tenant_id/chat, the
// session-optional entry point: get-or-create the session, then run the turn.
func (s *Server) chatHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	ctx := c.Request().Context()
	sessionID := req.SessionID
	if sessionID == "" {
		session, err := s.sessions.CreateSession(ctx, tenantID, req.UserID)
		if err != nil {
			return mapServiceError(err)
		}
		sessionID = session.ID
	}

	result, err := s.chat.HandleMessage(ctx, tenantID, sessionID, req.Message, req.Agent, req.Metadata)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// SupporterMessageRequest is the body for POST /tenants/:tenant_id/sessions/:id/supporter-messages.
type SupporterMessageRequest struct {
	SupporterID string `json:"supporter_id"`
	Content     string `json:"content"`
}

// supporterMessageHandler handles POST /api/v1/tenants/:tenant_id/sessions/:id/supporter-messages.
func (s *Server) supporterMessageHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	sessionID := c.Param("id")

	var req SupporterMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	msg, err := s.chat.SupporterMessage(c.Request().Context(), tenantID, sessionID, req.SupporterID, req.Content)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}
