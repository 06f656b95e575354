package websocket

import (
	"errors"
	"net"
	"net/http"
	"strings"
)

func (h *WebSocketHandler) getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

var (
	errConnectionLimit = errors.New("too many connections")
	errIPLimit         = errors.New("too many connections from this address")
)

// reserveConnection claims a global and a per-IP slot in one step; callers
// release them with releaseConnection once the connection is gone or the
// handshake failed.
func (h *WebSocketHandler) reserveConnection(clientIP string) error {
	h.slotMu.Lock()
	defer h.slotMu.Unlock()

	if h.MaxConnections > 0 && h.activeSlots >= h.MaxConnections {
		return errConnectionLimit
	}
	if h.ConnectionsPerIP > 0 && h.ipConnections[clientIP] >= h.ConnectionsPerIP {
		return errIPLimit
	}

	h.activeSlots++
	h.ipConnections[clientIP]++
	return nil
}

func (h *WebSocketHandler) releaseConnection(clientIP string) {
	h.slotMu.Lock()
	defer h.slotMu.Unlock()

	h.activeSlots--
	h.ipConnections[clientIP]--
	if h.ipConnections[clientIP] <= 0 {
		delete(h.ipConnections, clientIP)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		// non-browser clients
		return true
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
