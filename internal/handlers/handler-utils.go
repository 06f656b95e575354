package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/fisioflow/realtime/internal/dtos"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/internal/middleware"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 64 << 10

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

type HandlerFunc func(w http.ResponseWriter, r *http.Request) *app_error.AppError

func WrapHandler(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			reqID := middleware.GetRequestId(r.Context())
			event := log.Warn()
			if err.Code >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.Str("request_id", reqID).Str("kind", string(err.Kind)).Str("field", err.Field).Msg(err.Message)

			WriteJSON(w, err.Code, dtos.Response[any]{
				Message: "Error occur",
				Errors: &dtos.ErrorResponse{
					Code:    err.Code,
					Kind:    string(err.Kind),
					Message: err.Message,
					Field:   err.Field,
				},
				RequestID: reqID,
			})
		}
	}
}

func CreateResponse[T any](message string, data T, requestId string) dtos.Response[T] {
	return dtos.Response[T]{
		Message:   message,
		Data:      data,
		RequestID: requestId,
	}
}

// Respond writes a 200 envelope tagged with the request id.
func Respond[T any](w http.ResponseWriter, r *http.Request, message string, data T) {
	RespondStatus(w, r, http.StatusOK, message, data)
}

func RespondStatus[T any](w http.ResponseWriter, r *http.Request, status int, message string, data T) {
	WriteJSON(w, status, CreateResponse(message, data, middleware.GetRequestId(r.Context())))
}

// DecodeAndValidate reads a JSON body into dst and runs struct validation.
func DecodeAndValidate(r *http.Request, validate *validator.Validate, dst any) *app_error.AppError {
	defer r.Body.Close()

	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return app_error.NewValidationError("Invalid JSON", "body")
	}
	if err := validate.Struct(dst); err != nil {
		return ValidationError(err)
	}
	return nil
}

// ValidationError turns the first validator failure into a field-tagged error.
func ValidationError(err error) *app_error.AppError {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return app_error.NewValidationError(fe.Field()+" failed on "+fe.Tag(), fe.Field())
	}
	return app_error.NewValidationError("Invalid fields", "validation")
}

// QueryInt reads an optional integer query parameter.
func QueryInt(r *http.Request, key string, fallback int) (int, *app_error.AppError) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, app_error.NewValidationError(key+" must be an integer", key)
	}
	return n, nil
}

// CurrentUser returns the authenticated user id set by the JWT middleware.
func CurrentUser(r *http.Request) (string, *app_error.AppError) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.UserID == "" {
		return "", app_error.NewAuthError("unauthorized")
	}
	return claims.UserID, nil
}
