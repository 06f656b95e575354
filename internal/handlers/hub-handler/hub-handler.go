package hub_handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/fisioflow/realtime/internal/dtos/hub_dto"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/internal/handlers"
	"github.com/fisioflow/realtime/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type HubHandler struct {
	Hub      *websocket.Hub
	Validate *validator.Validate
}

func NewHubHandler(hub *websocket.Hub) *HubHandler {
	return &HubHandler{
		Hub:      hub,
		Validate: validator.New(),
	}
}

func (h *HubHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"timestamp":    time.Now().Unix(),
		"service":      "fisioflow-realtime",
		"online_users": h.Hub.OnlineCount(),
	})
}

func (h *HubHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	handlers.Respond(w, r, "get websocket stats", h.Hub.GetHubStats())
	return nil
}

// Room handlers

func (h *HubHandler) HandleGetRoomStats(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	roomID := chi.URLParam(r, "roomId")
	handlers.Respond(w, r, "get websocket room stats", h.Hub.GetRoomStats(roomID))
	return nil
}

func (h *HubHandler) HandleGetRoomClients(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	roomID := chi.URLParam(r, "roomId")
	connections := h.connectionInfo(h.Hub.GetRoomClients(roomID))

	handlers.Respond(w, r, "successfully get room clients", map[string]any{
		"room_id": roomID,
		"count":   len(connections),
		"clients": connections,
	})
	return nil
}

func (h *HubHandler) HandleAppointmentUpdate(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	appointmentID := chi.URLParam(r, "appointmentId")

	var req hub_dto.AppointmentUpdateRequest
	if appErr := handlers.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		return appErr
	}

	room := websocket.AppointmentRoom(appointmentID)
	msg := websocket.NewMessage(websocket.EventAppointmentUpdate, map[string]any{
		"appointment_id": appointmentID,
		"status":         req.Status,
		"message":        req.Message,
		"data":           req.Data,
	})
	msg.RoomID = room

	reached := h.Hub.SendToRoom(room, msg)
	handlers.Respond(w, r, "appointment update sent", hub_dto.DeliveryResponse{Reached: reached})
	return nil
}

func (h *HubHandler) HandleBroadcastToRole(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	role := chi.URLParam(r, "role")

	var req hub_dto.BroadcastRequest
	if appErr := handlers.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		return appErr
	}

	reached := h.Hub.SendToRole(role, websocket.NewMessage(req.Event, req.Data))
	handlers.Respond(w, r, "successfully broadcast to role", hub_dto.DeliveryResponse{Reached: reached})
	return nil
}

func (h *HubHandler) HandleBroadcastAll(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var req hub_dto.BroadcastRequest
	if appErr := handlers.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		return appErr
	}

	reached := h.Hub.BroadcastAll(req.Event, req.Data)
	handlers.Respond(w, r, "successfully broadcast", hub_dto.DeliveryResponse{Reached: reached})
	return nil
}

// User handlers

func (h *HubHandler) HandleGetUserStatus(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID := chi.URLParam(r, "userId")
	clients := h.Hub.GetUserClients(userID)

	handlers.Respond(w, r, "successful get user status", hub_dto.UserStatusResponse{
		UserID:      userID,
		Online:      h.Hub.IsOnline(userID),
		Connections: len(clients),
	})
	return nil
}

func (h *HubHandler) HandleGetUserConnections(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID := chi.URLParam(r, "userId")
	connections := h.connectionInfo(h.Hub.GetUserClients(userID))

	handlers.Respond(w, r, "successfully get user connection", map[string]any{
		"user_id":     userID,
		"count":       len(connections),
		"connections": connections,
	})
	return nil
}

func (h *HubHandler) HandleDisconnectUser(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID := chi.URLParam(r, "userId")

	var req hub_dto.DisconnectUserRequest
	if appErr := handlers.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		return appErr
	}

	disconnected := h.Hub.DisconnectUser(userID, req.Reason)
	handlers.Respond(w, r, "successfully disconnect user", map[string]any{
		"user_id":              userID,
		"disconnected_clients": disconnected,
		"reason":               req.Reason,
	})
	return nil
}

func (h *HubHandler) connectionInfo(clients []*websocket.Client) []hub_dto.ConnectionInfo {
	connections := make([]hub_dto.ConnectionInfo, 0, len(clients))
	for _, client := range clients {
		rooms := h.Hub.ClientRooms(client)
		sort.Strings(rooms)

		connections = append(connections, hub_dto.ConnectionInfo{
			ClientID:    client.ID,
			UserID:      client.UserID,
			Role:        client.Role,
			Rooms:       rooms,
			ConnectedAt: client.ConnectedAt.Unix(),
			LastSeen:    client.GetLastSeen().Unix(),
			Dropped:     client.Dropped(),
		})
	}
	return connections
}
