package routers

import (
	"github.com/fisioflow/realtime/internal/handlers"
	hub_handler "github.com/fisioflow/realtime/internal/handlers/hub-handler"
	job_handler "github.com/fisioflow/realtime/internal/handlers/job-handler"
	"github.com/fisioflow/realtime/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func HubRouter(r chi.Router, deps Deps) {
	hubHandler := hub_handler.NewHubHandler(deps.Hub)

	r.Get("/api/v1/health", hubHandler.HandleHealth)

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.JWTAuth(deps.JwtSecret))
		r.Use(middleware.RequireRole(middleware.RoleAdmin))

		r.Get("/stats", handlers.WrapHandler(hubHandler.HandleGetStats))
		r.Post("/broadcast", handlers.WrapHandler(hubHandler.HandleBroadcastAll))
		r.Post("/roles/{role}/broadcast", handlers.WrapHandler(hubHandler.HandleBroadcastToRole))
		r.Post("/appointments/{appointmentId}/update", handlers.WrapHandler(hubHandler.HandleAppointmentUpdate))

		// Room routes
		r.Route("/rooms/{roomId}", func(r chi.Router) {
			r.Get("/stats", handlers.WrapHandler(hubHandler.HandleGetRoomStats))
			r.Get("/clients", handlers.WrapHandler(hubHandler.HandleGetRoomClients))
		})

		// User routes
		r.Route("/users/{userId}", func(r chi.Router) {
			r.Get("/status", handlers.WrapHandler(hubHandler.HandleGetUserStatus))
			r.Get("/connections", handlers.WrapHandler(hubHandler.HandleGetUserConnections))
			r.Post("/disconnect", handlers.WrapHandler(hubHandler.HandleDisconnectUser))
		})

		if deps.Jobs != nil {
			jobHandler := job_handler.NewJobHandler(deps.Jobs)
			r.Get("/jobs/stats", handlers.WrapHandler(jobHandler.Stats))
			r.Get("/jobs/dead-letters", handlers.WrapHandler(jobHandler.DeadLetters))
		}
	})
}
