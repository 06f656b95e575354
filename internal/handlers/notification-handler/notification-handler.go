package notification_handler

import (
	"net/http"

	"github.com/fisioflow/realtime/internal/dtos/notification_dto"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/internal/handlers"
	notification_service "github.com/fisioflow/realtime/internal/use-case/notification-case"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type NotificationHandler struct {
	Service  notification_service.NotificationServiceContract
	Validate *validator.Validate
}

func NewNotificationHandler(service notification_service.NotificationServiceContract) *NotificationHandler {
	return &NotificationHandler{
		Service:  service,
		Validate: validator.New(),
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, appErr := handlers.CurrentUser(r)
	if appErr != nil {
		return appErr
	}

	limit, appErr := handlers.QueryInt(r, "limit", notification_service.DefaultListLimit)
	if appErr != nil {
		return appErr
	}

	notifications, appErr := h.Service.List(r.Context(), userID, limit)
	if appErr != nil {
		return appErr
	}

	handlers.Respond(w, r, "notifications fetched", notification_dto.ListNotificationsResponse{
		Notifications: notifications,
		Count:         len(notifications),
	})
	return nil
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, appErr := handlers.CurrentUser(r)
	if appErr != nil {
		return appErr
	}

	count, appErr := h.Service.UnreadCount(r.Context(), userID)
	if appErr != nil {
		return appErr
	}

	handlers.Respond(w, r, "unread count fetched", notification_dto.UnreadCountResponse{Count: count})
	return nil
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, appErr := handlers.CurrentUser(r)
	if appErr != nil {
		return appErr
	}

	notificationID := chi.URLParam(r, "notificationId")
	ok, appErr := h.Service.MarkRead(r.Context(), notificationID, userID)
	if appErr != nil {
		return appErr
	}
	if !ok {
		return app_error.NewNotFoundError("notification not found")
	}

	handlers.Respond(w, r, "notification marked as read", notification_dto.MarkReadResponse{
		NotificationID: notificationID,
		Read:           true,
	})
	return nil
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, appErr := handlers.CurrentUser(r)
	if appErr != nil {
		return appErr
	}

	updated, appErr := h.Service.MarkAllRead(r.Context(), userID)
	if appErr != nil {
		return appErr
	}

	handlers.Respond(w, r, "notifications marked as read", notification_dto.MarkAllReadResponse{Updated: updated})
	return nil
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, appErr := handlers.CurrentUser(r)
	if appErr != nil {
		return appErr
	}

	notificationID := chi.URLParam(r, "notificationId")
	ok, appErr := h.Service.Delete(r.Context(), notificationID, userID)
	if appErr != nil {
		return appErr
	}
	if !ok {
		return app_error.NewNotFoundError("notification not found")
	}

	handlers.Respond(w, r, "notification deleted", map[string]string{"notification_id": notificationID})
	return nil
}

// Create is for elevated callers; routing enforces the role.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var req notification_dto.CreateNotificationRequest
	if appErr := handlers.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		return appErr
	}

	notification, appErr := h.Service.Create(r.Context(), req)
	if appErr != nil {
		return appErr
	}

	handlers.RespondStatus(w, r, http.StatusCreated, "notification created", notification)
	return nil
}
