package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Scheduler      *handlers.SchedulerHandler
	Rules          *handlers.RulesHandler
	SLA            *handlers.SLAHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	ops := app.Group("/ops", cfg.AuthMiddleware.Handle)

	ops.Get("/scheduler/status", auth.RequireRole(auth.RoleViewer), cfg.Scheduler.Status)
	ops.Post("/scheduler/run", auth.RequireRole(auth.RoleOperator), cfg.Scheduler.Run)

	tenants := ops.Group("/tenants/:tenantID")
	tenants.Post("/rules/:ruleID/run", auth.RequireRole(auth.RoleOperator), cfg.Rules.RunRule)
	tenants.Post("/rules/:ruleID/execute/:ticketID", auth.RequireRole(auth.RoleOperator), cfg.Rules.ExecuteRule)
	tenants.Get("/rules/:ruleID/executions", auth.RequireRole(auth.RoleViewer), cfg.Rules.ListExecutions)
	tenants.Get("/notifications", auth.RequireRole(auth.RoleViewer), cfg.Rules.ListNotifications)

	tenants.Post("/tickets/:ticketID/apply-rules", auth.RequireRole(auth.RoleOperator), cfg.Rules.ApplyRules)
	tenants.Post("/tickets/:ticketID/sla/resolve", auth.RequireRole(auth.RoleOperator), cfg.SLA.ResolveSLA)
	tenants.Get("/tickets/:ticketID/sla", auth.RequireRole(auth.RoleViewer), cfg.SLA.SLAStatus)
}
