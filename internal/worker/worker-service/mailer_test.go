package worker_service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_BuildMessage(t *testing.T) {
	mailer := NewSMTPMailer("smtp.clinic.test", 587, "user", "pass", "no-reply@fisioflow.app")

	msg := mailer.buildMessage("maria@clinic.test", "Lembrete de consulta", "Você tem uma consulta amanhã.")

	assert.Equal(t, []string{"no-reply@fisioflow.app"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"maria@clinic.test"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Lembrete de consulta"}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "text/plain")
}

func TestSMTPMailer_CancelledContext(t *testing.T) {
	mailer := NewSMTPMailer("127.0.0.1", 1, "", "", "no-reply@fisioflow.app")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mailer.Send(ctx, "maria@clinic.test", "s", "b")

	assert.ErrorIs(t, err, context.Canceled)
}
