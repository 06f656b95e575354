package worker_handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fisioflow/realtime/internal/queue"
	"github.com/rs/zerolog/log"
)

var ErrMailerDisabled = errors.New("mailer is not configured")

func (wh *WorkerHandler) HandleEmailNotification(ctx context.Context, raw json.RawMessage) error {
	var payload queue.EmailPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.To == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidPayload)
	}

	if wh.Mailer == nil {
		return ErrMailerDisabled
	}

	if err := wh.Mailer.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		return err
	}

	log.Info().Str("subject", payload.Subject).Msg("notification email sent")
	return nil
}
