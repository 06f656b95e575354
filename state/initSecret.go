package state

import (
	"errors"

	"github.com/rs/zerolog/log"
)

const minSecretLength = 32

var ErrEmptySecret = errors.New("jwt secret is empty")

// InitSecret turns the configured HMAC secret into the key material shared by
// the handshake and the HTTP middleware. It is called once at startup.
func InitSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	if len(secret) < minSecretLength {
		log.Warn().Int("length", len(secret)).Msgf("JWT secret is shorter than %d bytes", minSecretLength)
	}

	log.Info().Msg("JWT secret initialized successfully")
	return []byte(secret), nil
}
