package notification_dto

type CreateNotificationRequest struct {
	UserID  string         `json:"user_id" validate:"required,max=64"`
	Type    string         `json:"type" validate:"required,oneof=appointment reminder system treatment progress"`
	Title   string         `json:"title" validate:"required,max=255"`
	Message string         `json:"message" validate:"required"`
	Payload map[string]any `json:"payload,omitempty"`
}
