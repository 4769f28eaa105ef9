package http

import (
	"testing"

	"mws-server/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionManager() *SessionManager {
	return NewSessionManager("test-secret", logger.NewLoggerWithConfig("error", "text"))
}

func TestSessionTokenRoundTrip(t *testing.T) {
	m := newTestSessionManager()

	token, err := m.sign("session-abc")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.Equal(t, "session-abc", m.sessionIDFromCookie(token))
}

func TestTamperedTokenYieldsNoSession(t *testing.T) {
	m := newTestSessionManager()

	token, err := m.sign("session-abc")
	require.NoError(t, err)

	assert.Empty(t, m.sessionIDFromCookie(token+"x"))
	assert.Empty(t, m.sessionIDFromCookie("not-a-jwt"))
	assert.Empty(t, m.sessionIDFromCookie(""))
}

func TestTokenSignedWithOtherSecretRejected(t *testing.T) {
	other := NewSessionManager("other-secret", logger.NewLoggerWithConfig("error", "text"))
	token, err := other.sign("session-abc")
	require.NoError(t, err)

	m := newTestSessionManager()
	assert.Empty(t, m.sessionIDFromCookie(token))
}
