package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fisioflow/realtime/internal/utils"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-handshake-secret")

type gatewayFixture struct {
	hub     *Hub
	handler *WebSocketHandler
	server  *httptest.Server
}

func newGatewayFixture(t *testing.T, rdb *redis.Client) *gatewayFixture {
	t.Helper()

	hub := NewHub()
	handler := NewWebSocketHandler(hub, JWTWebSocketAuth(testSecret, rdb), 5*time.Second)
	server := httptest.NewServer(handler)

	t.Cleanup(func() {
		server.Close()
		hub.Close()
	})

	return &gatewayFixture{hub: hub, handler: handler, server: server}
}

func (f *gatewayFixture) wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(f.server.URL, "http")
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func issue(t *testing.T, userID, role string, ttl time.Duration) string {
	t.Helper()
	token, err := utils.IssueToken(userID, userID+"@clinic.test", role, testSecret, ttl)
	require.NoError(t, err)
	return token
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWire(t *testing.T, conn *websocket.Conn) OutgoingMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg OutgoingMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func assertRejected(t *testing.T, url string, header http.Header, status int) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		conn.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, status, resp.StatusCode)
}

func TestHandshake_ValidTokenJoinsIdentityRooms(t *testing.T) {
	f := newGatewayFixture(t, nil)

	dial(t, f.wsURL(issue(t, "therapist-1", "fisioterapeuta", time.Hour)))

	require.Eventually(t, func() bool { return f.hub.IsOnline("therapist-1") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.hub.RoomSize("user:therapist-1"))
	assert.Equal(t, 1, f.hub.RoomSize("role:fisioterapeuta"))
	assert.Equal(t, 1, f.hub.OnlineCount())
}

func TestHandshake_BearerHeader(t *testing.T) {
	f := newGatewayFixture(t, nil)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+issue(t, "admin-1", "admin", time.Hour))
	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(""), header)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.IsOnline("admin-1") }, 2*time.Second, 10*time.Millisecond)
}

func TestHandshake_RejectsBadCredentials(t *testing.T) {
	f := newGatewayFixture(t, nil)

	otherSecret, err := utils.IssueToken("u1", "u1@clinic.test", "paciente", []byte("other"), time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", otherSecret},
		{"expired", issue(t, "u1", "paciente", -time.Minute)},
		{"missing role", issue(t, "u1", "", time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertRejected(t, f.wsURL(tt.token), nil, http.StatusUnauthorized)
		})
	}

	assert.Equal(t, 0, f.hub.ConnectionCount())
	assert.False(t, f.hub.IsOnline("u1"))
	assert.Equal(t, int64(len(tests)), f.hub.GetHubStats().RejectedHandshakes)
}

func TestHandshake_RejectedBodyIsGeneric(t *testing.T) {
	f := newGatewayFixture(t, nil)

	resp, err := http.Get(f.server.URL + "?token=" + issue(t, "u1", "paciente", -time.Minute))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["message"])
}

func TestHandshake_RevokedToken(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	f := newGatewayFixture(t, rdb)

	token := issue(t, "patient-1", "paciente", time.Hour)
	claims, err := utils.ParseAndVerifySign(token, testSecret)
	require.NoError(t, err)
	require.NoError(t, mr.Set(RevokedTokenKey(claims.ID), "1"))

	assertRejected(t, f.wsURL(token), nil, http.StatusUnauthorized)

	dial(t, f.wsURL(issue(t, "patient-1", "paciente", time.Hour)))
	require.Eventually(t, func() bool { return f.hub.IsOnline("patient-1") }, 2*time.Second, 10*time.Millisecond)
}

func TestHandshake_RevocationLookupFailureRefuses(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	f := newGatewayFixture(t, rdb)
	mr.Close()

	assertRejected(t, f.wsURL(issue(t, "patient-1", "paciente", time.Hour)), nil, http.StatusUnauthorized)
}

func TestHandshake_PerIPLimit(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.handler.ConnectionsPerIP = 1

	first := dial(t, f.wsURL(issue(t, "patient-1", "paciente", time.Hour)))
	require.Eventually(t, func() bool { return f.hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	assertRejected(t, f.wsURL(issue(t, "patient-2", "paciente", time.Hour)), nil, http.StatusTooManyRequests)

	first.Close()
	require.Eventually(t, func() bool {
		f.handler.slotMu.Lock()
		defer f.handler.slotMu.Unlock()
		return len(f.handler.ipConnections) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandshake_MaxConnections(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.handler.MaxConnections = 1

	dial(t, f.wsURL(issue(t, "patient-1", "paciente", time.Hour)))
	require.Eventually(t, func() bool { return f.hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	assertRejected(t, f.wsURL(issue(t, "patient-2", "paciente", time.Hour)), nil, http.StatusServiceUnavailable)
}

func TestReserveConnection_ConcurrentHandshakesRespectLimit(t *testing.T) {
	h := NewWebSocketHandler(NewHub(), nil, time.Second)
	t.Cleanup(h.hub.Close)
	h.MaxConnections = 5

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.reserveConnection(fmt.Sprintf("10.0.0.%d", i)) == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), granted.Load())
	assert.ErrorIs(t, h.reserveConnection("10.0.1.1"), errConnectionLimit)

	h.releaseConnection("10.0.0.0")
	h.releaseConnection("10.0.0.0")
	assert.NoError(t, h.reserveConnection("10.0.1.1"))
}

func TestReserveConnection_PerIP(t *testing.T) {
	h := NewWebSocketHandler(NewHub(), nil, time.Second)
	t.Cleanup(h.hub.Close)
	h.ConnectionsPerIP = 2

	require.NoError(t, h.reserveConnection("10.0.0.1"))
	require.NoError(t, h.reserveConnection("10.0.0.1"))
	assert.ErrorIs(t, h.reserveConnection("10.0.0.1"), errIPLimit)
	assert.NoError(t, h.reserveConnection("10.0.0.2"))
}

func TestHandshake_DisallowedOrigin(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.handler.AllowedOrigins = []string{"https://app.fisioflow.test"}

	header := http.Header{}
	header.Set("Origin", "https://evil.test")
	assertRejected(t, f.wsURL(issue(t, "patient-1", "paciente", time.Hour)), header, http.StatusForbidden)

	header.Set("Origin", "https://app.fisioflow.test")
	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(issue(t, "patient-1", "paciente", time.Hour)), header)
	require.NoError(t, err)
	resp.Body.Close()
	conn.Close()
}

func TestGateway_PushReachesAllUserConnections(t *testing.T) {
	f := newGatewayFixture(t, nil)

	phone := dial(t, f.wsURL(issue(t, "patient-1", "paciente", time.Hour)))
	laptop := dial(t, f.wsURL(issue(t, "patient-1", "paciente", time.Hour)))
	require.Eventually(t, func() bool { return len(f.hub.GetUserClients("patient-1")) == 2 }, 2*time.Second, 10*time.Millisecond)

	reached := f.hub.SendToUser("patient-1", NewMessage(EventNotification, map[string]any{"title": "Lembrete"}))
	assert.Equal(t, 2, reached)

	for _, conn := range []*websocket.Conn{phone, laptop} {
		msg := readWire(t, conn)
		assert.Equal(t, EventNotification, msg.Type)
		assert.Equal(t, "user:patient-1", msg.RoomID)
	}
}

func TestGateway_JoinAppointmentRoomOverWire(t *testing.T) {
	f := newGatewayFixture(t, nil)
	conn := dial(t, f.wsURL(issue(t, "patient-1", "paciente", time.Hour)))
	require.Eventually(t, func() bool { return f.hub.IsOnline("patient-1") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: RequestJoinRoom, RoomID: "appointment:apt-9"}))
	msg := readWire(t, conn)
	assert.Equal(t, EventRoomJoined, msg.Type)
	assert.Equal(t, 1, f.hub.RoomSize("appointment:apt-9"))

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: RequestJoinRoom, RoomID: "user:someone-else"}))
	assert.Equal(t, EventError, readWire(t, conn).Type)
	assert.Equal(t, 0, f.hub.RoomSize("user:someone-else"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, EventError, readWire(t, conn).Type)
}

func TestGateway_DisconnectClearsPresence(t *testing.T) {
	f := newGatewayFixture(t, nil)
	conn := dial(t, f.wsURL(issue(t, "patient-1", "paciente", time.Hour)))
	require.Eventually(t, func() bool { return f.hub.IsOnline("patient-1") }, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return !f.hub.IsOnline("patient-1") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.hub.RoomSize("user:patient-1"))
	assert.Equal(t, 0, f.hub.SendToUser("patient-1", NewMessage(EventNotification, nil)))
}

func TestGateway_DisconnectUserDeliversReasonBeforeClose(t *testing.T) {
	f := newGatewayFixture(t, nil)
	conn := dial(t, f.wsURL(issue(t, "patient-1", "paciente", time.Hour)))
	require.Eventually(t, func() bool { return f.hub.IsOnline("patient-1") }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, f.hub.DisconnectUser("patient-1", "account suspended"))

	msg := readWire(t, conn)
	assert.Equal(t, EventSystem, msg.Type)
	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "force_disconnect", data["action"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "account suspended", closeErr.Text)
	assert.False(t, f.hub.IsOnline("patient-1"))
}

func TestHandshake_ClosedHub(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.hub.Close()

	assertRejected(t, f.wsURL(issue(t, "patient-1", "paciente", time.Hour)), nil, http.StatusServiceUnavailable)
}
