package notification_dto

import "time"

// Domain events raised by the scheduling and clinical modules. Each one is
// turned into one or more notifications by a template.

type AppointmentEvent struct {
	AppointmentID    string    `json:"appointment_id" validate:"required,max=64"`
	PatientID        string    `json:"patient_id" validate:"required,max=64"`
	PatientName      string    `json:"patient_name" validate:"required"`
	PractitionerID   string    `json:"practitioner_id" validate:"required,max=64"`
	PractitionerName string    `json:"practitioner_name" validate:"required"`
	ScheduledAt      time.Time `json:"scheduled_at" validate:"required"`
	Reason           string    `json:"reason,omitempty"`
}

type AppointmentReminderEvent struct {
	AppointmentID   string    `json:"appointment_id" validate:"required,max=64"`
	RecipientID     string    `json:"recipient_id" validate:"required,max=64"`
	RecipientEmail  string    `json:"recipient_email,omitempty" validate:"omitempty,email"`
	CounterpartName string    `json:"counterpart_name" validate:"required"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	// RemindAt in the future defers the reminder to the job queue.
	RemindAt *time.Time `json:"remind_at,omitempty"`
}

type TreatmentPlanEvent struct {
	PlanID           string `json:"plan_id" validate:"required,max=64"`
	PatientID        string `json:"patient_id" validate:"required,max=64"`
	PractitionerName string `json:"practitioner_name" validate:"required"`
	Summary          string `json:"summary,omitempty"`
}

type ProgressMilestoneEvent struct {
	PatientID   string `json:"patient_id" validate:"required,max=64"`
	Milestone   string `json:"milestone" validate:"required"`
	Description string `json:"description,omitempty"`
}
