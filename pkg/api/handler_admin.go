package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/convoflow/convoflow/pkg/models"
)

// createAgentHandler handles POST /api/v1/admin/agents.
func (s *Server) createAgentHandler(c *echo.Context) error {
	var req models.CreateAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	agent, err := s.admin.CreateAgent(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, agent)
}

// listAgentsHandler handles GET /api/v1/admin/agents.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	agents, err := s.admin.ListAgents(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"agents": agents})
}

// SetAgentActiveRequest is the body for PATCH /admin/agents/:id/active.
type SetAgentActiveRequest struct {
	Active bool `json:"active"`
}

// setAgentActiveHandler handles PATCH /api/v1/admin/agents/:id/active.
func (s *Server) setAgentActiveHandler(c *echo.Context) error {
	agentID := c.Param("id")

	var req SetAgentActiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	agent, err := s.admin.SetAgentActive(c.Request().Context(), agentID, req.Active)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

// createToolHandler handles POST /api/v1/admin/tools.
func (s *Server) createToolHandler(c *echo.Context) error {
	var req models.CreateToolRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	tool, err := s.admin.CreateTool(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, tool)
}

// listToolsHandler handles GET /api/v1/admin/tools.
func (s *Server) listToolsHandler(c *echo.Context) error {
	tools, err := s.admin.ListTools(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"tools": tools})
}

// AssignToolsRequest is the body for PUT /admin/agents/:id/tools.
type AssignToolsRequest struct {
	Tools []models.ToolAssignment `json:"tools"`
}

// assignAgentToolsHandler handles PUT /api/v1/admin/agents/:id/tools.
// The request replaces the agent's entire execution plan atomically.
func (s *Server) assignAgentToolsHandler(c *echo.Context) error {
	agentID := c.Param("id")

	var req AssignToolsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	bindings, err := s.admin.AssignAgentTools(c.Request().Context(), agentID, req.Tools)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"bindings": bindings})
}

// SetAgentPermissionRequest is the body for PUT /admin/tenants/:tenant_id/agents/:agent_id/permission.
type SetAgentPermissionRequest struct {
	Enabled      bool                `json:"enabled"`
	OutputFormat models.OutputFormat `json:"output_format,omitempty"`
}

// setAgentPermissionHandler handles PUT /api/v1/admin/tenants/:tenant_id/agents/:agent_id/permission.
func (s *Server) setAgentPermissionHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	agentID := c.Param("agent_id")

	var req SetAgentPermissionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	perm, err := s.admin.SetAgentPermission(c.Request().Context(), tenantID, agentID, req.Enabled, req.OutputFormat)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, perm)
}

// SetToolPermissionRequest is the body for PUT /admin/tenants/:tenant_id/tools/:tool_id/permission.
type SetToolPermissionRequest struct {
	Enabled bool `json:"enabled"`
}

// setToolPermissionHandler handles PUT /api/v1/admin/tenants/:tenant_id/tools/:tool_id/permission.
func (s *Server) setToolPermissionHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	toolID := c.Param("tool_id")

	var req SetToolPermissionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	perm, err := s.admin.SetToolPermission(c.Request().Context(), tenantID, toolID, req.Enabled)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, perm)
}
