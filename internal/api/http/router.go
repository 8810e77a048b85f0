package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bradeyre/platinum-repairs-sub001/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Tickets   *handlers.TicketsHandler
	Sync      *handlers.SyncHandler
	Analytics *handlers.AnalyticsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	syncGroup := app.Group("/sync")
	syncGroup.Post("/run", cfg.Sync.RunSync)
	syncGroup.Get("/operations", cfg.Sync.ListOperations)
	syncGroup.Get("/operations/:id", cfg.Sync.GetOperation)

	app.Get("/tickets", cfg.Tickets.ListTickets)
	app.Get("/tickets/:source/:id", cfg.Tickets.GetTicket)

	analyticsGroup := app.Group("/analytics")
	analyticsGroup.Get("/summary", cfg.Analytics.Summary)
	analyticsGroup.Get("/technicians", cfg.Analytics.Technicians)
	analyticsGroup.Get("/devices", cfg.Analytics.Devices)
	analyticsGroup.Get("/time-buckets", cfg.Analytics.TimeBuckets)
}
