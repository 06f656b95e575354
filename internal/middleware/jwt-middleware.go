package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fisioflow/realtime/internal/dtos"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/internal/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type claimsKey string

const UserClaimsKey claimsKey = "userClaims"

// RoleAdmin is the elevated role allowed to create notifications for others
// and to use the hub administration API.
const RoleAdmin = "admin"

func JWTAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAppError(w, r, app_error.NewAuthError("Missing Authorization header"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeAppError(w, r, app_error.NewAuthError("Invalid Authorization header format"))
				return
			}

			claims, err := utils.ParseAndVerifySign(parts[1], secret)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					writeAppError(w, r, app_error.NewAuthError("Token expired"))
					return
				}
				log.Debug().Err(err).Msg("jwt verify failed")
				writeAppError(w, r, app_error.NewAuthError("Invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after JWTAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeAppError(w, r, app_error.NewAuthError("Missing credentials"))
				return
			}

			if _, ok := allowed[claims.Role]; !ok {
				log.Warn().Str("userID", claims.UserID).Str("role", claims.Role).Str("path", r.URL.Path).Msg("role not allowed")
				writeAppError(w, r, app_error.NewForbiddenError("Insufficient role"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*utils.Claims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*utils.Claims)
	return claims, ok && claims != nil
}

// writeAppError renders the same envelope as handlers.WrapHandler.
func writeAppError(w http.ResponseWriter, r *http.Request, appErr *app_error.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code)
	_ = json.NewEncoder(w).Encode(dtos.Response[any]{
		Message: "Error occur",
		Errors: &dtos.ErrorResponse{
			Code:    appErr.Code,
			Kind:    string(appErr.Kind),
			Message: appErr.Message,
			Field:   appErr.Field,
		},
		RequestID: GetRequestId(r.Context()),
	})
}
