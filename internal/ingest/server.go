// Package ingest implements C5: the HTTP/WebSocket surface that
// receives session/step ingestion from embedded hooks, persists
// through the store, and broadcasts live updates to connected
// dashboards. Grounded on original_source/norn/routers/sessions.py,
// agents_registry.py, config.py, swarms.py, stats.py, audit.py,
// websocket.py, and tarsy's pkg/api/server.go (echo wiring,
// ValidateWiring startup-completeness pattern) + pkg/events/manager.go
// (connection fan-out).
package ingest

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/hashtagemy/guard/internal/guardconfig"
	"github.com/hashtagemy/guard/internal/metrics"
	"github.com/hashtagemy/guard/internal/registry"
	"github.com/hashtagemy/guard/internal/store"
	"github.com/hashtagemy/guard/internal/version"
)

// Server is C5: the HTTP+WebSocket boundary in front of the Session
// Store and runtime config.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	store       *store.Store
	registry    *registry.Registry
	config      *guardconfig.Store
	hub         *Hub
	apiKey      string
	corsOrigins []string
	limiter     *rateLimiter

	logRoot string
}

// NewServer wires routes over the given store/registry/config/hub.
// apiKey empty means auth disabled (dev mode, spec.md §6). corsOrigins
// is the allowlist from the static bootstrap config.
func NewServer(st *store.Store, reg *registry.Registry, cfg *guardconfig.Store, hub *Hub, apiKey string, corsOrigins []string, logRoot string) *Server {
	e := echo.New()
	s := &Server{
		echo:        e,
		store:       st,
		registry:    reg,
		config:      cfg,
		hub:         hub,
		apiKey:      apiKey,
		corsOrigins: corsOrigins,
		limiter:     newRateLimiter(50, 100),
		logRoot:     logRoot,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(errorMiddleware())
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(s.corsMiddleware())
	s.echo.Use(s.metricsMiddleware())

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/metrics", s.metricsHandler)

	// Hook registration is explicitly unauthenticated (spec.md §4.5
	// "POST /agents/register (no auth)").
	s.echo.POST("/agents/register", s.registerAgentHandler, s.limiter.middleware())

	protected := s.echo.Group("", apiKeyMiddleware(s.apiKey))

	protected.POST("/sessions/ingest", s.ingestSessionHandler, s.limiter.middleware())
	protected.POST("/sessions/:id/step", s.ingestStepHandler, s.limiter.middleware())
	protected.POST("/sessions/:id/complete", s.completeSessionHandler, s.limiter.middleware())
	protected.GET("/sessions", s.listSessionsHandler)
	protected.GET("/sessions/:id", s.getSessionHandler)
	protected.DELETE("/sessions/:id", s.deleteSessionHandler)
	protected.DELETE("/sessions/:id/steps/:step_id", s.deleteStepHandler)

	protected.GET("/audit-logs", s.auditLogsHandler)
	protected.GET("/stats", s.statsHandler)
	protected.GET("/config", s.getConfigHandler)
	protected.PUT("/config", s.putConfigHandler)
	protected.GET("/swarms", s.listSwarmsHandler)
	protected.GET("/swarms/:id", s.getSwarmHandler)
	protected.GET("/agents", s.listAgentsHandler)
	protected.DELETE("/agents/:id", s.deleteAgentHandler)

	s.echo.GET("/ws/sessions", s.wsHandler)
}

// corsMiddleware mirrors the closed CORSOrigins allowlist from the
// static bootstrap config (internal/config); "*" means any origin.
func (s *Server) corsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			origin := c.Request().Header.Get("Origin")
			if origin != "" && s.originAllowed(origin) {
				h := c.Response().Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			}
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.corsOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// wsHandler upgrades to WebSocket and hands the connection to the Hub
// (spec.md §4.5 "WS /ws/sessions"). Auth is enforced before the
// upgrade, same as every other endpoint when an API key is configured
// (testable property 7 "... and the WebSocket upgrade").
func (s *Server) wsHandler(c *echo.Context) error {
	if s.apiKey != "" && !validAPIKey(c, s.apiKey) {
		return writeError(c, http.StatusUnauthorized, "invalid or missing API key", "auth")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	s.hub.HandleConnection(c.Request().Context(), conn)
	return nil
}

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "healthy",
		"active_connections": s.hub.ActiveConnections(),
		"build":              version.Build(),
	})
}

// metricsHandler serves the Prometheus exposition at /metrics.
func (s *Server) metricsHandler(c *echo.Context) error {
	metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

// metricsMiddleware records per-request HTTP counters, skipping the
// /metrics endpoint itself to avoid self-referential counting.
func (s *Server) metricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if c.Request().URL.Path == "/metrics" {
				return next(c)
			}
			err := next(c)
			status := 0
			if resp, uerr := echo.UnwrapResponse(c.Response()); uerr == nil {
				status = resp.Status
			}
			metrics.RecordHTTPRequest(c.Request().Method, c.Path(), status)
			return err
		}
	}
}

// Start serves on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener (used by tests).
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
