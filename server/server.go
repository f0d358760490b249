// Package server exposes the mail service over HTTP.
//
// Routes live under /api. Registration and login are public; every
// mail route requires a Bearer token issued by the auth service.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rbaliyan/gamemail"
	"github.com/rbaliyan/gamemail/auth"
)

// Server is the HTTP front end for a mail service.
type Server struct {
	app    *fiber.App
	cfg    *Config
	logger *slog.Logger
}

// New builds the HTTP server. rdb enables the per-IP request limiter
// and may be nil, in which case the limiter is skipped.
func New(cfg *Config, mail gamemail.Service, authSvc *auth.Service, rdb *redis.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:      "gamemail",
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BodyLimit:    cfg.BodyLimit,
	})

	h := &handlers{mail: mail, auth: authSvc, logger: logger}

	app.Use(requestID())
	if rdb != nil && cfg.RequestsPerMinute > 0 {
		limiter := newRateLimiter(rdb, "gamemail:http", cfg.RequestsPerMinute, time.Minute)
		app.Use(limiter.middleware())
	}

	app.Get("/health", h.health)

	api := app.Group("/api")
	api.Post("/auth/register", h.register)
	api.Post("/auth/login", h.login)

	messages := api.Group("/messages", requireAuth(authSvc))
	messages.Post("/", h.send)
	messages.Get("/", h.inbox)
	messages.Get("/sent", h.sent)
	messages.Get("/unread", h.unreadCount)
	messages.Get("/:id", h.get)
	messages.Patch("/:id/read", h.markRead)
	messages.Delete("/:id", h.delete)

	return &Server{app: app, cfg: cfg, logger: logger}
}

// Listen starts serving on the configured address and blocks.
func (s *Server) Listen() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown gracefully stops the server, letting in-flight requests
// finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
