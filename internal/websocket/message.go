package websocket

import "time"

// Server -> client event types.
const (
	EventNotification      = "notification"
	EventAppointmentUpdate = "appointment_update"
	EventRoomJoined        = "room_joined"
	EventRoomLeft          = "room_left"
	EventError             = "error"
	EventPong              = "pong"
	EventSystem            = "system"
)

// Client -> server request types.
const (
	RequestJoinRoom  = "join_room"
	RequestLeaveRoom = "leave_room"
	RequestPing      = "ping"
)

type OutgoingMessage struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type IncomingMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

func NewMessage(eventType string, data any) OutgoingMessage {
	return OutgoingMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

func NewSystemMessage(roomID, content string, data map[string]any) OutgoingMessage {
	payload := map[string]any{"content": content}
	for k, v := range data {
		payload[k] = v
	}

	msg := NewMessage(EventSystem, payload)
	msg.RoomID = roomID
	return msg
}

func newErrorMessage(roomID, reason string) OutgoingMessage {
	msg := NewMessage(EventError, map[string]any{"message": reason})
	msg.RoomID = roomID
	return msg
}
