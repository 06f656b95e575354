package event_handler

import (
	"net/http"

	"github.com/fisioflow/realtime/internal/dtos/notification_dto"
	"github.com/fisioflow/realtime/internal/entity"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/internal/handlers"
	notification_service "github.com/fisioflow/realtime/internal/use-case/notification-case"
	"github.com/go-playground/validator/v10"
)

// EventHandler receives domain events from the scheduling and clinical
// services and turns them into notifications.
type EventHandler struct {
	Service  notification_service.NotificationServiceContract
	Validate *validator.Validate
}

func NewEventHandler(service notification_service.NotificationServiceContract) *EventHandler {
	return &EventHandler{
		Service:  service,
		Validate: validator.New(),
	}
}

func (h *EventHandler) AppointmentCreated(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var ev notification_dto.AppointmentEvent
	if appErr := handlers.DecodeAndValidate(r, h.Validate, &ev); appErr != nil {
		return appErr
	}

	notifications, appErr := h.Service.NotifyAppointmentCreated(r.Context(), ev)
	return respondFanOut(w, r, "appointment created", notifications, appErr)
}

func (h *EventHandler) AppointmentCancelled(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var ev notification_dto.AppointmentEvent
	if appErr := handlers.DecodeAndValidate(r, h.Validate, &ev); appErr != nil {
		return appErr
	}

	notifications, appErr := h.Service.NotifyAppointmentCancelled(r.Context(), ev)
	return respondFanOut(w, r, "appointment cancelled", notifications, appErr)
}

// AppointmentReminder sends now, or schedules when remind_at is in the future.
func (h *EventHandler) AppointmentReminder(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var ev notification_dto.AppointmentReminderEvent
	if appErr := handlers.DecodeAndValidate(r, h.Validate, &ev); appErr != nil {
		return appErr
	}

	resp, appErr := h.Service.ScheduleAppointmentReminder(r.Context(), ev)
	if appErr != nil {
		return appErr
	}

	if resp.Scheduled {
		handlers.RespondStatus(w, r, http.StatusAccepted, "appointment reminder scheduled", resp)
		return nil
	}
	handlers.RespondStatus(w, r, http.StatusCreated, "appointment reminder sent", resp)
	return nil
}

func (h *EventHandler) TreatmentPlanUpdated(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var ev notification_dto.TreatmentPlanEvent
	if appErr := handlers.DecodeAndValidate(r, h.Validate, &ev); appErr != nil {
		return appErr
	}

	notification, appErr := h.Service.NotifyTreatmentPlanUpdated(r.Context(), ev)
	if appErr != nil {
		return appErr
	}

	handlers.RespondStatus(w, r, http.StatusCreated, "treatment plan notification sent", single(notification))
	return nil
}

func (h *EventHandler) ProgressMilestone(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var ev notification_dto.ProgressMilestoneEvent
	if appErr := handlers.DecodeAndValidate(r, h.Validate, &ev); appErr != nil {
		return appErr
	}

	notification, appErr := h.Service.NotifyProgressMilestone(r.Context(), ev)
	if appErr != nil {
		return appErr
	}

	handlers.RespondStatus(w, r, http.StatusCreated, "progress notification sent", single(notification))
	return nil
}

// respondFanOut answers 201 when every participant was notified and 207
// when only some were. Nothing stored means the error is returned as is.
func respondFanOut(w http.ResponseWriter, r *http.Request, event string, notifications []*entity.Notification, appErr *app_error.AppError) *app_error.AppError {
	if appErr == nil {
		handlers.RespondStatus(w, r, http.StatusCreated, event+" notifications sent", notification_dto.TemplateResponse{Notifications: notifications})
		return nil
	}
	if len(notifications) == 0 {
		return appErr
	}

	handlers.RespondStatus(w, r, http.StatusMultiStatus, event+" notifications partially sent", notification_dto.TemplateResponse{
		Notifications: notifications,
		Error:         appErr.Message,
	})
	return nil
}

func single(n *entity.Notification) notification_dto.TemplateResponse {
	return notification_dto.TemplateResponse{Notifications: []*entity.Notification{n}}
}
