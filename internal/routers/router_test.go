package routers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fisioflow/realtime/internal/dtos"
	"github.com/fisioflow/realtime/internal/entity"
	"github.com/fisioflow/realtime/internal/queue"
	notification_repo "github.com/fisioflow/realtime/internal/repo/notification"
	notification_service "github.com/fisioflow/realtime/internal/use-case/notification-case"
	"github.com/fisioflow/realtime/internal/utils"
	"github.com/fisioflow/realtime/internal/utils/types"
	"github.com/fisioflow/realtime/internal/websocket"
	"github.com/fisioflow/realtime/internal/worker"
	worker_handler "github.com/fisioflow/realtime/internal/worker/worker-handler"
	"github.com/fisioflow/realtime/state"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testSecret = []byte("router-test-secret-with-32-bytes!")

type envelope struct {
	Message   string              `json:"message"`
	Data      json.RawMessage     `json:"data"`
	RequestID string              `json:"request_id"`
	Errors    *dtos.ErrorResponse `json:"errors"`
}

type apiFixture struct {
	server *httptest.Server
	hub    *websocket.Hub
	rdb    *redis.Client
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, notification_repo.Migrate(db))

	appState := &state.AppState{DB: db, Redis: rdb, JwtSecret: testSecret}
	hub := websocket.NewHub()
	svc := notification_service.NewNotificationService(appState, hub, queue.NewProducer(rdb), notification_service.Config{UnreadCacheTTL: time.Minute})
	pool := worker.NewWorkerPool(appState, 1, worker_handler.NewWorkerHandler(svc, nil), types.DLQRetryConfig{})

	router := NewRouter(Deps{
		JwtSecret:     testSecret,
		Hub:           hub,
		WSHandler:     websocket.NewWebSocketHandler(hub, websocket.JWTWebSocketAuth(testSecret, rdb), 5*time.Second),
		Notifications: svc,
		Jobs:          pool,
	})
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		hub.Close()
	})

	return &apiFixture{server: server, hub: hub, rdb: rdb}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := utils.IssueToken(userID, userID+"@clinic.test", role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, tok string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (f *apiFixture) dial(t *testing.T, tok string) *gorilla.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + tok
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWire(t *testing.T, conn *gorilla.Conn) websocket.OutgoingMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg websocket.OutgoingMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func (f *apiFixture) createFor(t *testing.T, userID, title string) entity.Notification {
	t.Helper()

	status, env := f.do(t, http.MethodPost, "/api/v1/notifications", token(t, "admin-1", "admin"), map[string]any{
		"user_id": userID,
		"type":    "system",
		"title":   title,
		"message": title + " message",
	})
	require.Equal(t, http.StatusCreated, status, env.Errors)

	var n entity.Notification
	require.NoError(t, json.Unmarshal(env.Data, &n))
	return n
}

func TestHealthIsPublic(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNotificationsRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	status, env := f.do(t, http.MethodGet, "/api/v1/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Errors)
	assert.Equal(t, "authentication", env.Errors.Kind)
}

func TestCreateRequiresAdmin(t *testing.T) {
	f := newAPIFixture(t)

	status, env := f.do(t, http.MethodPost, "/api/v1/notifications", token(t, "patient-1", "paciente"), map[string]any{
		"user_id": "patient-1", "type": "system", "title": "t", "message": "m",
	})
	assert.Equal(t, http.StatusForbidden, status)
	require.NotNil(t, env.Errors)
	assert.Equal(t, "forbidden", env.Errors.Kind)
}

func TestCreateValidation(t *testing.T) {
	f := newAPIFixture(t)

	status, env := f.do(t, http.MethodPost, "/api/v1/notifications", token(t, "admin-1", "admin"), map[string]any{
		"user_id": "patient-1", "type": "gossip", "title": "t", "message": "m",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Errors)
	assert.Equal(t, "validation", env.Errors.Kind)
	assert.Equal(t, "Type", env.Errors.Field)
}

func TestNotificationLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	patient := token(t, "patient-1", "paciente")

	first := f.createFor(t, "patient-1", "Primeira")
	second := f.createFor(t, "patient-1", "Segunda")
	f.createFor(t, "patient-2", "Outro paciente")

	status, env := f.do(t, http.MethodGet, "/api/v1/notifications?limit=1", patient, nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Notifications []entity.Notification `json:"notifications"`
		Count         int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, second.ID, list.Notifications[0].ID)
	assert.False(t, list.Notifications[0].Read)

	status, env = f.do(t, http.MethodGet, "/api/v1/notifications/unread-count", patient, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"count":2}`, string(env.Data))

	status, env = f.do(t, http.MethodPatch, "/api/v1/notifications/"+first.ID+"/read", token(t, "patient-2", "paciente"), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Errors.Kind)

	status, _ = f.do(t, http.MethodPatch, "/api/v1/notifications/"+first.ID+"/read", patient, nil)
	assert.Equal(t, http.StatusOK, status)

	_, env = f.do(t, http.MethodGet, "/api/v1/notifications/unread-count", patient, nil)
	assert.JSONEq(t, `{"count":1}`, string(env.Data))

	status, env = f.do(t, http.MethodPatch, "/api/v1/notifications/read-all", patient, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"updated":1}`, string(env.Data))

	status, _ = f.do(t, http.MethodDelete, "/api/v1/notifications/"+second.ID, token(t, "patient-2", "paciente"), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodDelete, "/api/v1/notifications/"+second.ID, patient, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodDelete, "/api/v1/notifications/"+second.ID, patient, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListRejectsBadLimit(t *testing.T) {
	f := newAPIFixture(t)

	status, env := f.do(t, http.MethodGet, "/api/v1/notifications?limit=abc", token(t, "patient-1", "paciente"), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "limit", env.Errors.Field)
}

func TestCreatePushesToConnectedUser(t *testing.T) {
	f := newAPIFixture(t)

	conn := f.dial(t, token(t, "patient-1", "paciente"))
	require.Eventually(t, func() bool { return f.hub.IsOnline("patient-1") }, 2*time.Second, 10*time.Millisecond)

	created := f.createFor(t, "patient-1", "Consulta confirmada")

	msg := readWire(t, conn)
	assert.Equal(t, websocket.EventNotification, msg.Type)
	assert.Equal(t, "user:patient-1", msg.RoomID)
	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, created.ID, data["id"])
}

func TestAppointmentCreatedEvent(t *testing.T) {
	f := newAPIFixture(t)

	therapist := f.dial(t, token(t, "therapist-1", "fisioterapeuta"))
	require.Eventually(t, func() bool { return f.hub.IsOnline("therapist-1") }, 2*time.Second, 10*time.Millisecond)

	status, env := f.do(t, http.MethodPost, "/api/v1/internal/events/appointment-created", token(t, "scheduler", "admin"), map[string]any{
		"appointment_id":    "apt-1",
		"patient_id":        "patient-1",
		"patient_name":      "Maria",
		"practitioner_id":   "therapist-1",
		"practitioner_name": "Dr. João",
		"scheduled_at":      "2026-10-20T14:00:00Z",
	})
	require.Equal(t, http.StatusCreated, status, env.Errors)

	var resp struct {
		Notifications []entity.Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Len(t, resp.Notifications, 2)

	msg := readWire(t, therapist)
	assert.Equal(t, websocket.EventNotification, msg.Type)
}

func TestEventsRequireAdmin(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(t, http.MethodPost, "/api/v1/internal/events/progress-milestone", token(t, "patient-1", "paciente"), map[string]any{
		"patient_id": "patient-1", "milestone": "10 sessões",
	})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestScheduledReminderIsQueued(t *testing.T) {
	f := newAPIFixture(t)
	admin := token(t, "scheduler", "admin")

	remindAt := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	status, env := f.do(t, http.MethodPost, "/api/v1/internal/events/appointment-reminder", admin, map[string]any{
		"appointment_id":   "apt-1",
		"recipient_id":     "patient-1",
		"counterpart_name": "Dr. João",
		"scheduled_at":     time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339),
		"remind_at":        remindAt,
	})
	require.Equal(t, http.StatusAccepted, status, env.Errors)

	var resp struct {
		Scheduled bool   `json:"scheduled"`
		JobID     string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.Scheduled)
	assert.NotEmpty(t, resp.JobID)

	pending, err := f.rdb.ZCard(context.Background(), queue.DelayedQueueKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	status, env = f.do(t, http.MethodGet, "/api/v1/admin/jobs/stats", admin, nil)
	require.Equal(t, http.StatusOK, status)
	var stats worker.JobStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(1), stats.Pending)
}

func TestAdminAppointmentUpdateReachesRoom(t *testing.T) {
	f := newAPIFixture(t)
	admin := token(t, "admin-1", "admin")

	conn := f.dial(t, token(t, "patient-1", "paciente"))
	require.Eventually(t, func() bool { return f.hub.IsOnline("patient-1") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(websocket.IncomingMessage{Type: websocket.RequestJoinRoom, RoomID: "appointment:apt-7"}))
	assert.Equal(t, websocket.EventRoomJoined, readWire(t, conn).Type)

	status, env := f.do(t, http.MethodPost, "/api/v1/admin/appointments/apt-7/update", admin, map[string]any{
		"status":  "confirmed",
		"message": "Consulta confirmada",
	})
	require.Equal(t, http.StatusOK, status, env.Errors)
	assert.JSONEq(t, `{"reached":1}`, string(env.Data))

	msg := readWire(t, conn)
	assert.Equal(t, websocket.EventAppointmentUpdate, msg.Type)
	assert.Equal(t, "appointment:apt-7", msg.RoomID)
}

func TestAdminPresenceAndDisconnect(t *testing.T) {
	f := newAPIFixture(t)
	admin := token(t, "admin-1", "admin")

	first := f.dial(t, token(t, "patient-1", "paciente"))
	f.dial(t, token(t, "patient-1", "paciente"))
	require.Eventually(t, func() bool { return len(f.hub.GetUserClients("patient-1")) == 2 }, 2*time.Second, 10*time.Millisecond)

	status, env := f.do(t, http.MethodGet, "/api/v1/admin/users/patient-1/status", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"user_id":"patient-1","online":true,"connections":2}`, string(env.Data))

	status, env = f.do(t, http.MethodGet, "/api/v1/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, status)
	var stats websocket.HubStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.OnlineUsers)
	assert.Equal(t, 2, stats.TotalClients)

	status, _ = f.do(t, http.MethodPost, "/api/v1/admin/users/patient-1/disconnect", admin, map[string]any{"reason": "maintenance"})
	require.Equal(t, http.StatusOK, status)
	assert.False(t, f.hub.IsOnline("patient-1"))

	msg := readWire(t, first)
	assert.Equal(t, websocket.EventSystem, msg.Type)
	assert.Contains(t, msg.Data, "action")
	_, _, err := first.ReadMessage()
	var closeErr *gorilla.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, "maintenance", closeErr.Text)

	status, _ = f.do(t, http.MethodGet, "/api/v1/admin/stats", token(t, "patient-1", "paciente"), nil)
	assert.Equal(t, http.StatusForbidden, status)
}
