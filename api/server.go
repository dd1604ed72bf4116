package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/ragroute/ragroute/agent"
	"github.com/ragroute/ragroute/auth"
	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/metrics"
)

// Server is the thin HTTP surface over the routing agent: static token
// auth, one query endpoint, its streaming twin and a health probe.
type Server struct {
	app      *fiber.App
	agent    *agent.Agent
	registry *auth.Registry
	cfg      config.ServerConfig
}

func NewServer(cfg config.ServerConfig, ag *agent.Agent, registry *auth.Registry) *Server {
	s := &Server{
		agent:    ag,
		registry: registry,
		cfg:      cfg,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "ragroute",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.health)
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	s.app.Post("/api/auth/login", s.login)

	authed := s.app.Group("/api", s.requireUser)
	authed.Post("/query", s.query)
	authed.Post("/query/stream", s.queryStream)
}

// Listen blocks serving HTTP until shutdown.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Listen)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
