package worker_handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fisioflow/realtime/internal/dtos/notification_dto"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/rs/zerolog/log"
)

func (wh *WorkerHandler) HandleAppointmentReminder(ctx context.Context, raw json.RawMessage) error {
	var ev notification_dto.AppointmentReminderEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	// a deferred reminder always fires when its job runs
	ev.RemindAt = nil

	notification, appErr := wh.Notifier.NotifyAppointmentReminder(ctx, ev)
	if appErr != nil {
		if appErr.Kind == app_error.KindValidation {
			return fmt.Errorf("%w: %s", ErrInvalidPayload, appErr.Message)
		}
		return appErr
	}

	log.Info().Str("notificationID", notification.ID).Str("userID", ev.RecipientID).Str("appointmentID", ev.AppointmentID).Msg("scheduled reminder delivered")
	return nil
}
