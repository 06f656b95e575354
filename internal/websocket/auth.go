package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fisioflow/realtime/internal/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const revocationCheckTimeout = 2 * time.Second

// AuthError is returned to the handshake caller. Message is always generic;
// Reason is for server logs only.
type AuthError struct {
	Message string
	Reason  string
}

func (e *AuthError) Error() string { return e.Message }

func newAuthError(reason string) *AuthError {
	return &AuthError{Message: "unauthorized", Reason: reason}
}

type AuthenticatorFunc func(r *http.Request) (Principal, error)

// RevokedTokenKey is where the identity side marks a token id as revoked.
func RevokedTokenKey(jti string) string { return "ws:revoked:" + jti }

// JWTWebSocketAuth verifies the handshake token against the process-wide
// secret. When rdb is set, tokens listed under RevokedTokenKey are refused and
// a failing revocation lookup refuses too.
func JWTWebSocketAuth(secret []byte, rdb *redis.Client) AuthenticatorFunc {
	return func(r *http.Request) (Principal, error) {
		token := getTokenFromRequest(r)

		claims, err := utils.ParseAndVerifySign(token, secret)
		if err != nil {
			switch {
			case errors.Is(err, utils.ErrMissingToken):
				return Principal{}, newAuthError("missing token")
			case errors.Is(err, jwt.ErrTokenExpired):
				// Client must refresh via the identity provider, then reconnect
				return Principal{}, newAuthError("token expired")
			default:
				return Principal{}, newAuthError("invalid token: " + err.Error())
			}
		}

		if rdb != nil && claims.ID != "" {
			ctx, cancel := context.WithTimeout(r.Context(), revocationCheckTimeout)
			defer cancel()

			exists, err := rdb.Exists(ctx, RevokedTokenKey(claims.ID)).Result()
			if err != nil {
				log.Error().Err(err).Msg("ws: revocation lookup failed")
				return Principal{}, newAuthError("revocation lookup failed")
			}
			if exists > 0 {
				return Principal{}, newAuthError("token revoked")
			}
		}

		return Principal{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
		}, nil
	}
}

func getTokenFromRequest(r *http.Request) string {
	// Option 1: Authorization header
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	// Option 2: Query parameter, browsers cannot set headers on a websocket handshake
	token := r.URL.Query().Get("token")
	if token != "" {
		return token
	}

	// Option 3: Cookie
	cookie, err := r.Cookie("access_token")
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return ""
}
