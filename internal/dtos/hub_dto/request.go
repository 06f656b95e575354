package hub_dto

type AppointmentUpdateRequest struct {
	Status  string         `json:"status" validate:"required,max=32"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

type DisconnectUserRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type BroadcastRequest struct {
	Event string         `json:"event" validate:"required,max=64"`
	Data  map[string]any `json:"data,omitempty"`
}
