// Package api exposes the HTTP and WebSocket surface of the platform.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/convoflow/convoflow/pkg/database"
	"github.com/convoflow/convoflow/pkg/escalation"
	"github.com/convoflow/convoflow/pkg/events"
	"github.com/convoflow/convoflow/pkg/permissions"
	"github.com/convoflow/convoflow/pkg/services"
)

// Server wires services into HTTP routes.
type Server struct {
	db          *database.Client
	sessions    *services.SessionService
	chat        *services.ChatService
	admin       *services.AdminService
	escalations *escalation.Service
	resolver    *permissions.Resolver
	connManager *events.ConnectionManager
	wsOrigins   []string

	echo *echo.Echo
	http *http.Server
}

// NewServer creates the API server and registers all routes.
func NewServer(db *database.Client, sessions *services.SessionService, chat *services.ChatService, admin *services.AdminService, esc *escalation.Service, resolver *permissions.Resolver, connManager *events.ConnectionManager) *Server {
	s := &Server{
		db:          db,
		sessions:    sessions,
		chat:        chat,
		admin:       admin,
		escalations: esc,
		resolver:    resolver,
		connManager: connManager,
		echo:        echo.New(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(securityHeaders())
	e.Use(requestLogger(slog.Default().With("component", "api")))

	e.GET("/healthz", s.healthHandler)

	v1 := e.Group("/api/v1")
	v1.GET("/ws", s.wsHandler)

	tenant := v1.Group("/tenants/:tenant_id")
	tenant.POST("/chat", s.chatHandler)
	tenant.POST("/sessions", s.createSessionHandler)
	tenant.GET("/sessions/:id", s.getSessionHandler)
	tenant.GET("/sessions/:id/messages", s.listMessagesHandler)
	tenant.POST("/sessions/:id/messages", s.sendMessageHandler)
	tenant.POST("/sessions/:id/supporter-messages", s.supporterMessageHandler)
	tenant.POST("/sessions/:id/escalate", s.escalateHandler)
	tenant.POST("/sessions/:id/assign", s.assignHandler)
	tenant.POST("/sessions/:id/resolve", s.resolveHandler)
	tenant.GET("/escalations", s.escalationQueueHandler)
	tenant.GET("/agents", s.listTenantAgentsHandler)

	admin := v1.Group("/admin")
	admin.GET("/agents", s.listAgentsHandler)
	admin.POST("/agents", s.createAgentHandler)
	admin.PATCH("/agents/:id/active", s.setAgentActiveHandler)
	admin.PUT("/agents/:id/tools", s.assignAgentToolsHandler)
	admin.GET("/tools", s.listToolsHandler)
	admin.POST("/tools", s.createToolHandler)
	admin.PUT("/tenants/:tenant_id/agents/:agent_id/permission", s.setAgentPermissionHandler)
	admin.PUT("/tenants/:tenant_id/tools/:tool_id/permission", s.setToolPermissionHandler)
}

// Echo exposes the underlying router, primarily for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start begins serving on addr and blocks until the server closes.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
