package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSecret_Success(t *testing.T) {
	raw := strings.Repeat("k", minSecretLength)

	secret, err := InitSecret(raw)

	require.NoError(t, err, "InitSecret should not return an error")
	assert.Equal(t, []byte(raw), secret)
}

func TestInitSecret_ShortSecretIsAccepted(t *testing.T) {
	secret, err := InitSecret("short")

	require.NoError(t, err)
	assert.Len(t, secret, 5)
}

func TestInitSecret_Empty(t *testing.T) {
	secret, err := InitSecret("")

	assert.ErrorIs(t, err, ErrEmptySecret)
	assert.Nil(t, secret, "secret should be nil on error")
}
