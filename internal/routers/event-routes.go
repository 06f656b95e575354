package routers

import (
	"github.com/fisioflow/realtime/internal/handlers"
	event_handler "github.com/fisioflow/realtime/internal/handlers/event-handler"
	"github.com/fisioflow/realtime/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func EventRouter(r chi.Router, deps Deps) {
	eventHandler := event_handler.NewEventHandler(deps.Notifications)

	r.Route("/api/v1/internal/events", func(r chi.Router) {
		r.Use(middleware.JWTAuth(deps.JwtSecret))
		r.Use(middleware.RequireRole(middleware.RoleAdmin))

		r.Post("/appointment-created", handlers.WrapHandler(eventHandler.AppointmentCreated))
		r.Post("/appointment-cancelled", handlers.WrapHandler(eventHandler.AppointmentCancelled))
		r.Post("/appointment-reminder", handlers.WrapHandler(eventHandler.AppointmentReminder))
		r.Post("/treatment-plan-updated", handlers.WrapHandler(eventHandler.TreatmentPlanUpdated))
		r.Post("/progress-milestone", handlers.WrapHandler(eventHandler.ProgressMilestone))
	})
}
