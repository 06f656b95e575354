package notification_dto

import "github.com/fisioflow/realtime/internal/entity"

type ListNotificationsResponse struct {
	Notifications []entity.Notification `json:"notifications"`
	Count         int                   `json:"count"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type MarkReadResponse struct {
	NotificationID string `json:"notification_id"`
	Read           bool   `json:"read"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// TemplateResponse lists the notifications a template stored. Error is set
// when only some recipients were notified.
type TemplateResponse struct {
	Notifications []*entity.Notification `json:"notifications"`
	Scheduled     bool                   `json:"scheduled,omitempty"`
	JobID         string                 `json:"job_id,omitempty"`
	Error         string                 `json:"error,omitempty"`
}
