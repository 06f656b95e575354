package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrHubClosed = errors.New("hub is closed")

// Hub is the presence and routing gateway. It is the only writer of the
// connection table, the room index and the presence index; all three change
// together under mu, so a send that snapshots a room never sees a half-removed
// connection.
type Hub struct {
	mu sync.RWMutex
	// connection id -> client, the authoritative table
	clients map[string]*Client
	// room name -> connection ids
	rooms map[string]map[string]struct{}
	// user id -> connection ids
	presence map[string]map[string]struct{}

	// Hub lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	// Metrics
	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64
	rejected         atomic.Int64
	lastReset        time.Time

	// Cleanup
	cleanupTicker     *time.Ticker
	inactiveThreshold time.Duration
}

type HubStats struct {
	TotalRooms         int       `json:"total_rooms"`
	TotalClients       int       `json:"total_clients"`
	OnlineUsers        int       `json:"online_users"`
	TotalConnections   int64     `json:"total_connections"`
	RejectedHandshakes int64     `json:"rejected_handshakes"`
	MessageSent        int64     `json:"message_sent"`
	MessagesDropped    int64     `json:"messages_dropped"`
	LastReset          time.Time `json:"last_reset"`
}

type RoomStats struct {
	RoomID      string `json:"room_id"`
	Exists      bool   `json:"exists"`
	Connections int    `json:"connections"`
	UniqueUsers int    `json:"unique_users"`
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		clients:           make(map[string]*Client),
		rooms:             make(map[string]map[string]struct{}),
		presence:          make(map[string]map[string]struct{}),
		ctx:               ctx,
		cancel:            cancel,
		lastReset:         time.Now(),
		cleanupTicker:     time.NewTicker(1 * time.Minute),
		inactiveThreshold: 2 * pongWait,
	}

	// Start cleanup routine
	go hub.cleanupRoutine()

	return hub
}

// Register admits an authenticated client and joins it to user:<id> and
// role:<role>. Registering the same client twice is a no-op.
func (h *Hub) Register(client *Client) error {
	if h.closed.Load() {
		return ErrHubClosed
	}

	h.mu.Lock()
	// Close flips closed before it snapshots clients under mu
	if h.closed.Load() {
		h.mu.Unlock()
		return ErrHubClosed
	}
	if _, exists := h.clients[client.ID]; exists {
		h.mu.Unlock()
		return nil
	}

	h.clients[client.ID] = client
	h.joinLocked(client, UserRoom(client.UserID))
	h.joinLocked(client, RoleRoom(client.Role))

	if h.presence[client.UserID] == nil {
		h.presence[client.UserID] = make(map[string]struct{})
	}
	h.presence[client.UserID][client.ID] = struct{}{}
	userConns := len(h.presence[client.UserID])
	h.mu.Unlock()

	h.totalConnections.Add(1)

	log.Info().Str("clientID", client.ID).Str("userID", client.UserID).Str("role", client.Role).Int("userConnections", userConns).Msg("ws: client registered")
	return nil
}

// Unregister removes the client from every room and from the presence index.
// Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if registered, ok := h.clients[client.ID]; !ok || registered != client {
		h.mu.Unlock()
		return
	}

	for room := range client.rooms {
		h.leaveLocked(client, room)
	}

	if conns, ok := h.presence[client.UserID]; ok {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(h.presence, client.UserID)
		}
	}

	delete(h.clients, client.ID)
	stillOnline := len(h.presence[client.UserID]) > 0
	h.mu.Unlock()

	log.Info().Str("clientID", client.ID).Str("userID", client.UserID).Bool("userStillOnline", stillOnline).Msg("ws: client unregistered")
}

// JoinRoom adds a client to an appointment room. It reports whether the
// membership changed; joining twice is not an error.
func (h *Hub) JoinRoom(client *Client, room string) (bool, error) {
	if err := validateVoluntaryRoom(room); err != nil {
		return false, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return false, nil
	}
	return h.joinLocked(client, room), nil
}

// LeaveRoom removes a client from an appointment room; leaving a room the
// client is not in is a no-op.
func (h *Hub) LeaveRoom(client *Client, room string) (bool, error) {
	if err := validateVoluntaryRoom(room); err != nil {
		return false, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.leaveLocked(client, room), nil
}

func (h *Hub) joinLocked(client *Client, room string) bool {
	if _, already := client.rooms[room]; already {
		return false
	}

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]struct{})
	}
	h.rooms[room][client.ID] = struct{}{}
	client.rooms[room] = struct{}{}
	return true
}

func (h *Hub) leaveLocked(client *Client, room string) bool {
	if _, member := client.rooms[room]; !member {
		return false
	}

	delete(client.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)

		// Clean up empty rooms
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	return true
}

// SendToUser delivers msg to every live connection of userID and returns how
// many were reached. Zero means the user is offline, which is not an error.
func (h *Hub) SendToUser(userID string, message OutgoingMessage) int {
	return h.SendToRoom(UserRoom(userID), message)
}

func (h *Hub) SendToRole(role string, message OutgoingMessage) int {
	return h.SendToRoom(RoleRoom(role), message)
}

func (h *Hub) SendToRoom(room string, message OutgoingMessage) int {
	if message.RoomID == "" {
		message.RoomID = room
	}

	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]*Client, 0, len(members))
	for id := range members {
		if client, ok := h.clients[id]; ok {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, message)
}

// BroadcastAll sends a named event to every connection regardless of rooms.
func (h *Hub) BroadcastAll(eventName string, data any) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	return h.deliver(targets, NewMessage(eventName, data))
}

// deliver enqueues outside the hub lock. A client that closed after the
// snapshot is skipped; one bad connection never aborts the batch.
func (h *Hub) deliver(targets []*Client, message OutgoingMessage) int {
	if len(targets) == 0 {
		return 0
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Str("roomID", message.RoomID).Str("messageType", message.Type).Msg("ws: failed to marshal broadcast message")
		return 0
	}

	reached := 0
	for _, client := range targets {
		ok, dropped := client.enqueue(data)
		if dropped > 0 {
			h.messagesDropped.Add(int64(dropped))
			log.Warn().Str("clientID", client.ID).Str("userID", client.UserID).Int("dropped", dropped).Msg("ws: slow consumer, dropped oldest message")
		}
		if ok {
			reached++
		}
	}

	h.messagesSent.Add(int64(reached))
	log.Debug().Str("roomID", message.RoomID).Int("targets", len(targets)).Int("reached", reached).Str("messageType", message.Type).Msg("ws: broadcast completed")
	return reached
}

func (h *Hub) handleIncoming(client *Client, msg IncomingMessage) {
	switch msg.Type {
	case RequestJoinRoom:
		changed, err := h.JoinRoom(client, msg.RoomID)
		if err != nil {
			client.SendMessage(newErrorMessage(msg.RoomID, err.Error()))
			return
		}
		reply := NewMessage(EventRoomJoined, map[string]any{"changed": changed})
		reply.RoomID = msg.RoomID
		client.SendMessage(reply)

	case RequestLeaveRoom:
		changed, err := h.LeaveRoom(client, msg.RoomID)
		if err != nil {
			client.SendMessage(newErrorMessage(msg.RoomID, err.Error()))
			return
		}
		reply := NewMessage(EventRoomLeft, map[string]any{"changed": changed})
		reply.RoomID = msg.RoomID
		client.SendMessage(reply)

	case RequestPing:
		client.SendMessage(NewMessage(EventPong, nil))

	default:
		client.SendMessage(newErrorMessage(msg.RoomID, "unknown message type"))
	}
}

// Utility methods

// IsOnline is advisory; it races with concurrent connects and disconnects.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.presence[userID]) > 0
}

// OnlineCount returns the number of distinct users with a live connection.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.presence)
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientRooms returns the rooms a connection currently belongs to.
func (h *Hub) ClientRooms(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(client.rooms))
	for room := range client.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// GetRoomClients return all active clients in a room
func (h *Hub) GetRoomClients(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var clients []*Client
	for id := range h.rooms[room] {
		if client, ok := h.clients[id]; ok && client.IsClientActive() {
			clients = append(clients, client)
		}
	}
	return clients
}

// GetUserClients returns all active clients for a user
func (h *Hub) GetUserClients(userID string) []*Client {
	return h.GetRoomClients(UserRoom(userID))
}

func (h *Hub) GetRoomStats(room string) RoomStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := RoomStats{RoomID: room}
	members, ok := h.rooms[room]
	if !ok {
		return stats
	}

	uniqueUsers := make(map[string]struct{})
	for id := range members {
		if client, ok := h.clients[id]; ok {
			uniqueUsers[client.UserID] = struct{}{}
		}
	}

	stats.Exists = true
	stats.Connections = len(members)
	stats.UniqueUsers = len(uniqueUsers)
	return stats
}

func (h *Hub) GetHubStats() HubStats {
	h.mu.RLock()
	stats := HubStats{
		TotalRooms:   len(h.rooms),
		TotalClients: len(h.clients),
		OnlineUsers:  len(h.presence),
	}
	h.mu.RUnlock()

	stats.TotalConnections = h.totalConnections.Load()
	stats.RejectedHandshakes = h.rejected.Load()
	stats.MessageSent = h.messagesSent.Load()
	stats.MessagesDropped = h.messagesDropped.Load()
	stats.LastReset = h.lastReset
	return stats
}

func (h *Hub) recordRejected() { h.rejected.Add(1) }

// DisconnectUser closes every live connection of userID after telling each
// one why. Returns the number of connections closed.
func (h *Hub) DisconnectUser(userID, reason string) int {
	clients := h.GetUserClients(userID)
	for _, client := range clients {
		msg := NewSystemMessage(UserRoom(userID), "connection closed: "+reason, map[string]any{"action": "force_disconnect"})
		client.SendMessage(msg)
		h.Unregister(client)
		client.CloseGracefully(reason)
	}

	if len(clients) > 0 {
		log.Info().Str("userID", userID).Int("clients", len(clients)).Str("reason", reason).Msg("ws: user disconnected by admin")
	}
	return len(clients)
}

func (h *Hub) closeClient(client *Client) {
	h.Unregister(client)
	client.Close()
}

func (h *Hub) cleanupRoutine() {
	defer h.cleanupTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.cleanupTicker.C:
			h.performCleanup(time.Now())
		}
	}
}

func (h *Hub) performCleanup(now time.Time) int {
	// Clean up inactive clients
	var toRemove []*Client

	h.mu.RLock()
	for _, client := range h.clients {
		if !client.IsClientActive() || now.Sub(client.GetLastSeen()) > h.inactiveThreshold {
			toRemove = append(toRemove, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range toRemove {
		log.Info().Str("clientID", client.ID).Str("userID", client.UserID).Msg("ws: cleaning up inactive client")
		h.closeClient(client)
	}

	log.Debug().Int("cleaned", len(toRemove)).Msg("ws: cleanup routine completed")
	return len(toRemove)
}

// Close gracefully shuts down the hub; later Register calls fail.
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	log.Info().Msg("ws: shutting down hub")

	h.cancel()

	// Close all clients
	h.mu.RLock()
	allClients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		allClients = append(allClients, client)
	}
	h.mu.RUnlock()

	for _, client := range allClients {
		h.Unregister(client)
		client.CloseGracefully("server shutting down")
	}

	log.Info().Int("clients", len(allClients)).Msg("ws: hub shutdown completed")
}
