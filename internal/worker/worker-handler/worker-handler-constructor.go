package worker_handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/fisioflow/realtime/internal/dtos/notification_dto"
	"github.com/fisioflow/realtime/internal/entity"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/internal/queue"
	worker_service "github.com/fisioflow/realtime/internal/worker/worker-service"
)

// ErrInvalidPayload marks a job that can never succeed; the pool sends it
// straight to the dead letter list.
var ErrInvalidPayload = errors.New("invalid job payload")

type ReminderNotifier interface {
	NotifyAppointmentReminder(ctx context.Context, ev notification_dto.AppointmentReminderEvent) (*entity.Notification, *app_error.AppError)
}

type WorkerHandler struct {
	Notifier ReminderNotifier
	// Mailer is nil when SMTP is not configured.
	Mailer worker_service.Mailer
}

func NewWorkerHandler(notifier ReminderNotifier, mailer worker_service.Mailer) *WorkerHandler {
	return &WorkerHandler{
		Notifier: notifier,
		Mailer:   mailer,
	}
}

func (wh *WorkerHandler) HandleJob(ctx context.Context, job queue.Job) error {
	switch job.Type {
	case queue.JobAppointmentReminder:
		return wh.HandleAppointmentReminder(ctx, job.Payload)
	case queue.JobEmailNotification:
		return wh.HandleEmailNotification(ctx, job.Payload)
	default:
		return fmt.Errorf("%w: unknown job type %q", ErrInvalidPayload, job.Type)
	}
}
