package routers

import (
	"github.com/fisioflow/realtime/internal/handlers"
	notification_handler "github.com/fisioflow/realtime/internal/handlers/notification-handler"
	"github.com/fisioflow/realtime/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func NotificationRouter(r chi.Router, deps Deps) {
	notificationHandler := notification_handler.NewNotificationHandler(deps.Notifications)

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(middleware.JWTAuth(deps.JwtSecret))

		r.Get("/", handlers.WrapHandler(notificationHandler.List))
		r.Get("/unread-count", handlers.WrapHandler(notificationHandler.UnreadCount))
		r.Patch("/read-all", handlers.WrapHandler(notificationHandler.MarkAllRead))
		r.Patch("/{notificationId}/read", handlers.WrapHandler(notificationHandler.MarkRead))
		r.Delete("/{notificationId}", handlers.WrapHandler(notificationHandler.Delete))

		r.With(middleware.RequireRole(middleware.RoleAdmin)).
			Post("/", handlers.WrapHandler(notificationHandler.Create))
	})
}
