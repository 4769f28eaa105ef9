package http

import (
	"time"

	"mws-server/internal/shared/logger"
	"mws-server/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the signed session id.
const SessionCookieName = "mws_session"

const sessionLifetime = 30 * 24 * time.Hour

const sessionLocalsKey = "session_id"

// SessionManager issues and validates the signed session-id cookie — the
// stable per-client identity everything downstream (tenant access checks,
// rate limiting) is keyed by.
type SessionManager struct {
	secret []byte
	log    logger.Logger
}

// NewSessionManager creates a SessionManager signing with the given secret.
func NewSessionManager(secret string, log logger.Logger) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		log:    log.WithComponent("session"),
	}
}

// Middleware resolves the caller's session id, minting a fresh identity and
// cookie when none is presented, and stores the id on the request context.
func (m *SessionManager) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := m.sessionIDFromCookie(c.Cookies(SessionCookieName))
		if sessionID == "" {
			sessionID = uuid.NewString()
			token, err := m.sign(sessionID)
			if err != nil {
				m.log.Errorf("Failed to sign session token: %v", err)
				return fiber.ErrInternalServerError
			}
			c.Cookie(&fiber.Cookie{
				Name:     SessionCookieName,
				Value:    token,
				Expires:  time.Now().Add(sessionLifetime),
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		c.Locals(sessionLocalsKey, sessionID)
		c.SetUserContext(utils.WithSessionID(c.UserContext(), sessionID))
		return c.Next()
	}
}

// SessionID returns the session id resolved by the middleware, or "".
func SessionID(c *fiber.Ctx) string {
	if v, ok := c.Locals(sessionLocalsKey).(string); ok {
		return v
	}
	return ""
}

func (m *SessionManager) sign(sessionID string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  sessionID,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// sessionIDFromCookie validates the cookie and extracts the session id.
// An invalid or tampered cookie is treated as no session at all.
func (m *SessionManager) sessionIDFromCookie(cookie string) string {
	if cookie == "" {
		return ""
	}
	token, err := jwt.ParseWithClaims(cookie, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return ""
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return ""
	}
	return claims.Subject
}
