package routers

import (
	"net/http"

	job_handler "github.com/fisioflow/realtime/internal/handlers/job-handler"
	"github.com/fisioflow/realtime/internal/middleware"
	notification_service "github.com/fisioflow/realtime/internal/use-case/notification-case"
	"github.com/fisioflow/realtime/internal/websocket"
	"github.com/go-chi/chi/v5"
)

type Deps struct {
	JwtSecret     []byte
	Hub           *websocket.Hub
	WSHandler     http.Handler
	Notifications notification_service.NotificationServiceContract
	// Jobs is nil when the worker pool is not running.
	Jobs job_handler.JobInspector
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.WithRequestId)
	r.Use(middleware.RequestLogger)

	r.Get("/ws", deps.WSHandler.ServeHTTP)

	HubRouter(r, deps)
	NotificationRouter(r, deps)
	EventRouter(r, deps)
	return r
}
