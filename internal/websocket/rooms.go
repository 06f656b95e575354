package websocket

import (
	"errors"
	"strings"
)

const (
	userRoomPrefix        = "user:"
	roleRoomPrefix        = "role:"
	appointmentRoomPrefix = "appointment:"

	maxRoomNameLength = 128
)

var ErrRoomNotAllowed = errors.New("only appointment rooms can be joined or left")

func UserRoom(userID string) string { return userRoomPrefix + userID }

func RoleRoom(role string) string { return roleRoomPrefix + role }

func AppointmentRoom(appointmentID string) string { return appointmentRoomPrefix + appointmentID }

// validateVoluntaryRoom accepts only appointment:<id>. user:* and role:* rooms
// are assigned from the verified principal and never by client request.
func validateVoluntaryRoom(room string) error {
	if !strings.HasPrefix(room, appointmentRoomPrefix) {
		return ErrRoomNotAllowed
	}

	id := strings.TrimPrefix(room, appointmentRoomPrefix)
	if id == "" || len(room) > maxRoomNameLength || strings.ContainsAny(id, " \t\r\n:") {
		return ErrRoomNotAllowed
	}

	return nil
}
