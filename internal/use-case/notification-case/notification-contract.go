package notification_service

import (
	"context"

	"github.com/fisioflow/realtime/internal/dtos/notification_dto"
	"github.com/fisioflow/realtime/internal/entity"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/internal/websocket"
)

type NotificationServiceContract interface {
	Create(ctx context.Context, req notification_dto.CreateNotificationRequest) (*entity.Notification, *app_error.AppError)
	List(ctx context.Context, userID string, limit int) ([]entity.Notification, *app_error.AppError)
	UnreadCount(ctx context.Context, userID string) (int64, *app_error.AppError)
	MarkRead(ctx context.Context, notificationID, userID string) (bool, *app_error.AppError)
	MarkAllRead(ctx context.Context, userID string) (int64, *app_error.AppError)
	Delete(ctx context.Context, notificationID, userID string) (bool, *app_error.AppError)

	// The appointment fan-outs return whatever was stored alongside the first
	// error when only one participant could be notified.
	NotifyAppointmentCreated(ctx context.Context, ev notification_dto.AppointmentEvent) ([]*entity.Notification, *app_error.AppError)
	NotifyAppointmentCancelled(ctx context.Context, ev notification_dto.AppointmentEvent) ([]*entity.Notification, *app_error.AppError)
	NotifyAppointmentReminder(ctx context.Context, ev notification_dto.AppointmentReminderEvent) (*entity.Notification, *app_error.AppError)
	ScheduleAppointmentReminder(ctx context.Context, ev notification_dto.AppointmentReminderEvent) (*notification_dto.TemplateResponse, *app_error.AppError)
	NotifyTreatmentPlanUpdated(ctx context.Context, ev notification_dto.TreatmentPlanEvent) (*entity.Notification, *app_error.AppError)
	NotifyProgressMilestone(ctx context.Context, ev notification_dto.ProgressMilestoneEvent) (*entity.Notification, *app_error.AppError)
}

// Pusher is the part of the gateway the service needs.
type Pusher interface {
	SendToUser(userID string, message websocket.OutgoingMessage) int
	IsOnline(userID string) bool
}
