package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rosa/ecogoals-sync/internal/handlers"
	"github.com/rosa/ecogoals-sync/internal/middleware"
)

func Setup(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)

	protected := api.Group("/", middleware.Protected())

	goals := protected.Group("/goals")
	goals.Get("/", h.ListGoals)
	goals.Post("/", h.CreateGoal)
	goals.Get("/stats", h.GetGoalStats)
	goals.Put("/:id", h.UpdateGoal)
	goals.Delete("/:id", h.DeleteGoal)

	protected.Post("/purchases", h.RecordPurchase)
}
