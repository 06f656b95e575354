package notification_service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fisioflow/realtime/internal/dtos/notification_dto"
	"github.com/fisioflow/realtime/internal/entity"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/internal/queue"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const scheduleLayout = "02/01/2006 às 15:04"

func formatSchedule(t time.Time) string {
	return t.Format(scheduleLayout)
}

func (s *NotificationService) NotifyAppointmentCreated(ctx context.Context, ev notification_dto.AppointmentEvent) ([]*entity.Notification, *app_error.AppError) {
	if appErr := validateAppointmentEvent(ev); appErr != nil {
		return nil, appErr
	}

	when := formatSchedule(ev.ScheduledAt)
	return s.createAll(ctx,
		notification_dto.CreateNotificationRequest{
			UserID:  ev.PatientID,
			Type:    string(entity.NotificationAppointment),
			Title:   "Nova consulta agendada",
			Message: fmt.Sprintf("Sua consulta com %s foi agendada para %s.", ev.PractitionerName, when),
			Payload: appointmentPayload(ev, "created"),
		},
		notification_dto.CreateNotificationRequest{
			UserID:  ev.PractitionerID,
			Type:    string(entity.NotificationAppointment),
			Title:   "Nova consulta agendada",
			Message: fmt.Sprintf("Consulta com %s agendada para %s.", ev.PatientName, when),
			Payload: appointmentPayload(ev, "created"),
		},
	)
}

func (s *NotificationService) NotifyAppointmentCancelled(ctx context.Context, ev notification_dto.AppointmentEvent) ([]*entity.Notification, *app_error.AppError) {
	if appErr := validateAppointmentEvent(ev); appErr != nil {
		return nil, appErr
	}

	when := formatSchedule(ev.ScheduledAt)
	suffix := "."
	if ev.Reason != "" {
		suffix = ". Motivo: " + ev.Reason
	}

	return s.createAll(ctx,
		notification_dto.CreateNotificationRequest{
			UserID:  ev.PatientID,
			Type:    string(entity.NotificationAppointment),
			Title:   "Consulta cancelada",
			Message: fmt.Sprintf("Sua consulta com %s em %s foi cancelada%s", ev.PractitionerName, when, suffix),
			Payload: appointmentPayload(ev, "cancelled"),
		},
		notification_dto.CreateNotificationRequest{
			UserID:  ev.PractitionerID,
			Type:    string(entity.NotificationAppointment),
			Title:   "Consulta cancelada",
			Message: fmt.Sprintf("A consulta com %s em %s foi cancelada%s", ev.PatientName, when, suffix),
			Payload: appointmentPayload(ev, "cancelled"),
		},
	)
}

// NotifyAppointmentReminder fires now. When the recipient has no live
// connection and an email is known, an email job is queued as well.
func (s *NotificationService) NotifyAppointmentReminder(ctx context.Context, ev notification_dto.AppointmentReminderEvent) (*entity.Notification, *app_error.AppError) {
	if appErr := validateReminderEvent(ev); appErr != nil {
		return nil, appErr
	}

	when := formatSchedule(ev.ScheduledAt)
	message := fmt.Sprintf("Você tem uma consulta com %s em %s.", ev.CounterpartName, when)

	notification, appErr := s.Create(ctx, notification_dto.CreateNotificationRequest{
		UserID:  ev.RecipientID,
		Type:    string(entity.NotificationReminder),
		Title:   "Lembrete de consulta",
		Message: message,
		Payload: map[string]any{
			"appointment_id": ev.AppointmentID,
			"scheduled_at":   ev.ScheduledAt,
		},
	})
	if appErr != nil {
		return nil, appErr
	}

	if s.shouldEmail(ev) {
		s.enqueueReminderEmail(ctx, ev, message)
	}

	return notification, nil
}

func (s *NotificationService) shouldEmail(ev notification_dto.AppointmentReminderEvent) bool {
	if !s.Config.MailEnabled || s.Producer == nil || ev.RecipientEmail == "" {
		return false
	}
	return s.Hub == nil || !s.Hub.IsOnline(ev.RecipientID)
}

func (s *NotificationService) enqueueReminderEmail(ctx context.Context, ev notification_dto.AppointmentReminderEvent, message string) {
	job, err := queue.NewJob(queue.JobEmailNotification, queue.EmailPayload{
		To:      ev.RecipientEmail,
		Subject: "Lembrete de consulta - FisioFlow",
		Body:    message,
	}, s.now())
	if err != nil {
		log.Error().Err(err).Str("userID", ev.RecipientID).Msg("failed to build reminder email job")
		return
	}

	if err := s.Producer.Enqueue(ctx, job); err != nil {
		log.Error().Err(err).Str("userID", ev.RecipientID).Msg("failed to enqueue reminder email")
		return
	}
	log.Info().Str("jobID", job.ID).Str("userID", ev.RecipientID).Msg("reminder email queued for offline user")
}

// ScheduleAppointmentReminder fires immediately unless RemindAt is in the
// future, in which case the reminder is deferred to the job queue.
func (s *NotificationService) ScheduleAppointmentReminder(ctx context.Context, ev notification_dto.AppointmentReminderEvent) (*notification_dto.TemplateResponse, *app_error.AppError) {
	if appErr := validateReminderEvent(ev); appErr != nil {
		return nil, appErr
	}

	if ev.RemindAt == nil || !ev.RemindAt.After(s.now()) {
		notification, appErr := s.NotifyAppointmentReminder(ctx, ev)
		if appErr != nil {
			return nil, appErr
		}
		return &notification_dto.TemplateResponse{Notifications: []*entity.Notification{notification}}, nil
	}

	if s.Producer == nil {
		return nil, app_error.NewUnavailableError("reminder scheduling is unavailable", "remind_at")
	}

	runAt := *ev.RemindAt
	ev.RemindAt = nil
	job, err := queue.NewJob(queue.JobAppointmentReminder, ev, runAt)
	if err != nil {
		log.Error().Err(err).Msg("failed to build reminder job")
		return nil, app_error.NewAppError(http.StatusInternalServerError, "failed to schedule reminder", "remind_at")
	}

	if err := s.Producer.Enqueue(ctx, job); err != nil {
		log.Error().Err(err).Str("userID", ev.RecipientID).Msg("failed to enqueue reminder")
		return nil, app_error.NewStorageError("job-queue")
	}

	log.Info().Str("jobID", job.ID).Str("userID", ev.RecipientID).Time("runAt", runAt).Msg("appointment reminder scheduled")
	return &notification_dto.TemplateResponse{
		Notifications: []*entity.Notification{},
		Scheduled:     true,
		JobID:         job.ID,
	}, nil
}

func (s *NotificationService) NotifyTreatmentPlanUpdated(ctx context.Context, ev notification_dto.TreatmentPlanEvent) (*entity.Notification, *app_error.AppError) {
	if strings.TrimSpace(ev.PatientID) == "" {
		return nil, app_error.NewValidationError("patient id is required", "patient_id")
	}

	message := fmt.Sprintf("%s atualizou seu plano de tratamento.", ev.PractitionerName)
	if ev.Summary != "" {
		message += " " + ev.Summary
	}

	return s.Create(ctx, notification_dto.CreateNotificationRequest{
		UserID:  ev.PatientID,
		Type:    string(entity.NotificationTreatment),
		Title:   "Plano de tratamento atualizado",
		Message: message,
		Payload: map[string]any{"plan_id": ev.PlanID},
	})
}

func (s *NotificationService) NotifyProgressMilestone(ctx context.Context, ev notification_dto.ProgressMilestoneEvent) (*entity.Notification, *app_error.AppError) {
	if strings.TrimSpace(ev.PatientID) == "" {
		return nil, app_error.NewValidationError("patient id is required", "patient_id")
	}
	if strings.TrimSpace(ev.Milestone) == "" {
		return nil, app_error.NewValidationError("milestone is required", "milestone")
	}

	payload := map[string]any{"milestone": ev.Milestone}
	if ev.Description != "" {
		payload["description"] = ev.Description
	}

	return s.Create(ctx, notification_dto.CreateNotificationRequest{
		UserID:  ev.PatientID,
		Type:    string(entity.NotificationProgress),
		Title:   "Nova conquista no seu progresso",
		Message: fmt.Sprintf("Parabéns! Você alcançou: %s.", ev.Milestone),
		Payload: payload,
	})
}

// createAll runs every create even if one fails. The notifications that
// were stored come back in request order together with the first error, so
// a caller can report partial delivery.
func (s *NotificationService) createAll(ctx context.Context, reqs ...notification_dto.CreateNotificationRequest) ([]*entity.Notification, *app_error.AppError) {
	results := make([]*entity.Notification, len(reqs))
	failures := make([]*app_error.AppError, len(reqs))

	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			results[i], failures[i] = s.Create(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	created := make([]*entity.Notification, 0, len(reqs))
	var firstErr *app_error.AppError
	for i := range reqs {
		if failures[i] != nil {
			if firstErr == nil {
				firstErr = failures[i]
			}
			log.Warn().Str("user_id", reqs[i].UserID).Str("error", failures[i].Message).Msg("template notification not created")
			continue
		}
		created = append(created, results[i])
	}

	return created, firstErr
}

func appointmentPayload(ev notification_dto.AppointmentEvent, action string) map[string]any {
	return map[string]any{
		"appointment_id":  ev.AppointmentID,
		"action":          action,
		"scheduled_at":    ev.ScheduledAt,
		"patient_id":      ev.PatientID,
		"practitioner_id": ev.PractitionerID,
	}
}

func validateAppointmentEvent(ev notification_dto.AppointmentEvent) *app_error.AppError {
	switch {
	case strings.TrimSpace(ev.AppointmentID) == "":
		return app_error.NewValidationError("appointment id is required", "appointment_id")
	case strings.TrimSpace(ev.PatientID) == "":
		return app_error.NewValidationError("patient id is required", "patient_id")
	case strings.TrimSpace(ev.PractitionerID) == "":
		return app_error.NewValidationError("practitioner id is required", "practitioner_id")
	case ev.ScheduledAt.IsZero():
		return app_error.NewValidationError("scheduled_at is required", "scheduled_at")
	}
	return nil
}

func validateReminderEvent(ev notification_dto.AppointmentReminderEvent) *app_error.AppError {
	switch {
	case strings.TrimSpace(ev.AppointmentID) == "":
		return app_error.NewValidationError("appointment id is required", "appointment_id")
	case strings.TrimSpace(ev.RecipientID) == "":
		return app_error.NewValidationError("recipient id is required", "recipient_id")
	case ev.ScheduledAt.IsZero():
		return app_error.NewValidationError("scheduled_at is required", "scheduled_at")
	}
	return nil
}
