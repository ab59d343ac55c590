package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Shifts         *handlers.ShiftsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", auth.RequireRole(domain.RoleUser, domain.RoleAdmin), cfg.Tickets.Create)
	tickets.Get("", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Patch("/:id/status", cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/reopen", auth.RequireRole(domain.RoleUser, domain.RoleAdmin), cfg.Tickets.Reopen)
	tickets.Post("/:id/cancel", auth.RequireRole(domain.RoleUser, domain.RoleAdmin), cfg.Tickets.Cancel)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Put("/:id/technician", auth.RequireRole(domain.RoleAdmin), cfg.Tickets.AssignTechnician)
	tickets.Delete("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Tickets.Delete)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Post("/accounts", cfg.Users.RegisterStaff)
	admin.Delete("/accounts/:id", cfg.Users.Deactivate)
	admin.Post("/shifts", cfg.Shifts.Create)
	admin.Get("/technicians/:id/shifts", cfg.Shifts.ListForTechnician)
	admin.Delete("/shifts/:id", cfg.Shifts.Delete)
}
