package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// SetAllowedWSOrigins configures WebSocket origin patterns. An empty list
// keeps same-origin enforcement.
func (s *Server) SetAllowedWSOrigins(origins []string) {
	s.wsOrigins = origins
}

// wsHandler upgrades the request to a WebSocket and hands the socket to the
// connection manager, which owns it until the client disconnects.
func (s *Server) wsHandler(c *echo.Context) error {
	if s.connManager == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "WebSocket not available")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: s.wsOrigins,
	})
	if err != nil {
		return err
	}

	s.connManager.HandleConnection(c.Request().Context(), conn)
	return nil
}
