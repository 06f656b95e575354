package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobAppointmentReminder = "appointment_reminder"
	JobEmailNotification   = "email_notification"

	DefaultMaxRetry = 3
	// jobs older than this go straight to the dead letter list on failure
	DefaultJobTTL = 24 * time.Hour
)

// Job is one unit of deferred work. RunAt and ExpireAt are unix milliseconds;
// RunAt doubles as the sorted-set score.
type Job struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Retry     int             `json:"retry"`
	MaxRetry  int             `json:"max_retry"`
	ErrorMsg  string          `json:"error_msg,omitempty"`
	CreatedAt int64           `json:"created_at"`
	RunAt     int64           `json:"run_at"`
	ExpireAt  int64           `json:"expired_at"`
}

func NewJob(jobType string, payload any, runAt time.Time) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}

	now := time.Now()
	if runAt.Before(now) {
		runAt = now
	}

	return Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   raw,
		MaxRetry:  DefaultMaxRetry,
		CreatedAt: now.UnixMilli(),
		RunAt:     runAt.UnixMilli(),
		ExpireAt:  runAt.Add(DefaultJobTTL).UnixMilli(),
	}, nil
}

func (j Job) Expired(now time.Time) bool {
	return j.ExpireAt > 0 && now.UnixMilli() > j.ExpireAt
}
