package entity

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationAppointment NotificationType = "appointment"
	NotificationReminder    NotificationType = "reminder"
	NotificationSystem      NotificationType = "system"
	NotificationTreatment   NotificationType = "treatment"
	NotificationProgress    NotificationType = "progress"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationAppointment: {},
	NotificationReminder:    {},
	NotificationSystem:      {},
	NotificationTreatment:   {},
	NotificationProgress:    {},
}

func (t NotificationType) Valid() bool {
	_, ok := notificationTypes[t]
	return ok
}

// Notification is immutable after creation except for Read/ReadAt.
// IDs are UUIDv7, so ordering by id follows creation order.
type Notification struct {
	ID        string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string           `gorm:"type:varchar(64);not null;index:idx_notifications_user_read,priority:1;index:idx_notifications_user_created,priority:1" json:"user_id"`
	Type      NotificationType `gorm:"type:varchar(32);not null" json:"type"`
	Title     string           `gorm:"type:varchar(255);not null" json:"title"`
	Message   string           `gorm:"type:text;not null" json:"message"`
	Payload   datatypes.JSON   `json:"payload,omitempty"`
	Read      bool             `gorm:"not null;default:false;index:idx_notifications_user_read,priority:2" json:"read"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	CreatedAt time.Time        `gorm:"not null;index:idx_notifications_user_created,priority:2" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
