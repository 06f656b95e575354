package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fisioflow/realtime/internal/dtos"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/internal/middleware"
	"github.com/fisioflow/realtime/internal/utils"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapHandlerRendersErrorEnvelope(t *testing.T) {
	h := middleware.WithRequestId(WrapHandler(func(w http.ResponseWriter, r *http.Request) *app_error.AppError {
		return app_error.NewStorageError("notification-storage")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body dtos.Response[any]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "req-42", body.RequestID)
	require.NotNil(t, body.Errors)
	assert.Equal(t, "storage", body.Errors.Kind)
	assert.Equal(t, "internal storage error", body.Errors.Message)
	assert.Nil(t, body.Data)
}

func TestWrapHandlerPassesThroughSuccess(t *testing.T) {
	h := WrapHandler(func(w http.ResponseWriter, r *http.Request) *app_error.AppError {
		Respond(w, r, "ok", map[string]int{"count": 3})
		return nil
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"ok","data":{"count":3},"request_id":"unknown"}`, rec.Body.String())
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    int
		wantErr bool
	}{
		{name: "absent uses fallback", url: "/", want: 50},
		{name: "present", url: "/?limit=7", want: 7},
		{name: "negative is passed through", url: "/?limit=-1", want: -1},
		{name: "not a number", url: "/?limit=ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, appErr := QueryInt(httptest.NewRequest(http.MethodGet, tt.url, nil), "limit", 50)
			if tt.wantErr {
				require.NotNil(t, appErr)
				assert.Equal(t, app_error.KindValidation, appErr.Kind)
				assert.Equal(t, "limit", appErr.Field)
				return
			}
			require.Nil(t, appErr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAndValidate(t *testing.T) {
	type payload struct {
		Reason string `json:"reason" validate:"required"`
	}
	validate := validator.New()

	var ok payload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"maintenance"}`))
	require.Nil(t, DecodeAndValidate(req, validate, &ok))
	assert.Equal(t, "maintenance", ok.Reason)

	var missing payload
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	appErr := DecodeAndValidate(req, validate, &missing)
	require.NotNil(t, appErr)
	assert.Equal(t, "Reason", appErr.Field)

	var broken payload
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":`))
	appErr = DecodeAndValidate(req, validate, &broken)
	require.NotNil(t, appErr)
	assert.Equal(t, "body", appErr.Field)
}

func TestCurrentUser(t *testing.T) {
	secret := []byte("current-user-secret")
	tok, err := utils.IssueToken("patient-1", "p@clinic.test", "paciente", secret, time.Hour)
	require.NoError(t, err)

	var got string
	h := middleware.JWTAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, appErr := CurrentUser(r)
		require.Nil(t, appErr)
		got = userID
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "patient-1", got)

	_, appErr := CurrentUser(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.Code)
}
