package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler authenticates the upgrade request and, only on success,
// opens the websocket and registers the connection with the hub.
type WebSocketHandler struct {
	hub           *Hub
	authenticator AuthenticatorFunc
	upgrader      websocket.Upgrader

	MaxConnections   int
	ConnectionsPerIP int
	SendBuffer       int
	AllowedOrigins   []string

	// handshakes in flight plus live connections
	slotMu        sync.Mutex
	activeSlots   int
	ipConnections map[string]int
}

func NewWebSocketHandler(hub *Hub, authenticator AuthenticatorFunc, handshakeTimeout time.Duration) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:           hub,
		authenticator: authenticator,
		SendBuffer:    defaultSendBuffer,
		ipConnections: make(map[string]int),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: handshakeTimeout,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.hub.closed.Load() {
		writeHandshakeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	clientIP := h.getClientIP(r)
	if err := h.reserveConnection(clientIP); err != nil {
		status := http.StatusTooManyRequests
		if errors.Is(err, errConnectionLimit) {
			status = http.StatusServiceUnavailable
		}
		log.Warn().Str("ip", clientIP).Int("max", h.MaxConnections).Int("perIP", h.ConnectionsPerIP).Msg("ws: " + err.Error())
		writeHandshakeError(w, status, err.Error())
		return
	}

	principal, err := h.authenticateConnection(r)
	if err != nil {
		h.releaseConnection(clientIP)
		h.hub.recordRejected()

		reason := err.Error()
		var authErr *AuthError
		if errors.As(err, &authErr) {
			reason = authErr.Reason
		}
		log.Info().Str("ip", clientIP).Str("reason", reason).Msg("ws: handshake rejected")
		writeHandshakeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.releaseConnection(clientIP)
		log.Error().Err(err).Msg("ws: upgrade failed")
		return
	}

	client := NewClient(uuid.New().String(), conn, principal, h.SendBuffer)
	if err := h.hub.Register(client); err != nil {
		h.releaseConnection(clientIP)
		client.Close()
		return
	}

	client.Start(h.hub)
	go func() {
		<-client.Done()
		h.releaseConnection(clientIP)
	}()
}

func (h *WebSocketHandler) authenticateConnection(r *http.Request) (Principal, error) {
	if h.authenticator == nil {
		return Principal{}, newAuthError("no authenticator configured")
	}

	return h.authenticator(r)
}

func writeHandshakeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"message": message})
}
