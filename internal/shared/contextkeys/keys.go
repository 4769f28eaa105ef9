package contextkeys

// contextKey is an unexported type to prevent collisions with context keys
// defined in other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "mws-server context key " + string(c)
}

// SessionIDKey is the key for the caller's session id in context.Context.
const SessionIDKey = contextKey("sessionID")

// ResIDKey is the key for the active tenant resource id in context.Context.
const ResIDKey = contextKey("resID")

// RequestIDKey is the key for the per-request correlation id in context.Context.
const RequestIDKey = contextKey("requestID")
