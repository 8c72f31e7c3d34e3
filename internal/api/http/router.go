package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexus-chat/moderation-service/internal/api/http/handlers"
	"github.com/nexus-chat/moderation-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Chat           *handlers.ChatHandler
	Moderation     *handlers.ModerationHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, auth.RequireSession(), cfg.Auth.Logout)

	chat := app.Group("/chat", cfg.AuthMiddleware.Handle, auth.RequireSession())
	chat.Post("/messages", cfg.Chat.PostMessage)
	chat.Post("/images", cfg.Chat.PostImage)
	chat.Get("/channels/:id/messages", cfg.Chat.ListMessages)

	me := app.Group("/me", cfg.AuthMiddleware.Handle, auth.RequireSession())
	me.Get("/sanction", cfg.Chat.SanctionStatus)

	mod := app.Group("/moderation", cfg.AuthMiddleware.Handle, auth.RequireOwner())
	mod.Get("/audit", cfg.Moderation.Audit)
	mod.Post("/commands", cfg.Moderation.Command)
	mod.Post("/users/:username/reset", cfg.Moderation.Reset)
}
