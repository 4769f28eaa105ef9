package utils

import (
	"context"
	"errors"

	"mws-server/internal/shared/contextkeys"
)

// Common context errors
var (
	ErrSessionIDNotFound  = errors.New("sessionID not found in context")
	ErrSessionIDNotString = errors.New("sessionID in context is not a string")
	ErrResIDNotFound      = errors.New("resID not found in context")
	ErrResIDNotString     = errors.New("resID in context is not a string")
)

// GetSessionIDFromContext retrieves the session id from the context.
// It returns an error if the session id is not found or is not a string.
func GetSessionIDFromContext(ctx context.Context) (string, error) {
	val := ctx.Value(contextkeys.SessionIDKey)
	if val == nil {
		return "", ErrSessionIDNotFound
	}
	sessionID, ok := val.(string)
	if !ok {
		return "", ErrSessionIDNotString
	}
	return sessionID, nil
}

// GetResIDFromContext retrieves the tenant resource id from the context.
func GetResIDFromContext(ctx context.Context) (string, error) {
	val := ctx.Value(contextkeys.ResIDKey)
	if val == nil {
		return "", ErrResIDNotFound
	}
	resID, ok := val.(string)
	if !ok {
		return "", ErrResIDNotString
	}
	return resID, nil
}

// WithSessionID returns a copy of ctx carrying the given session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextkeys.SessionIDKey, sessionID)
}

// WithResID returns a copy of ctx carrying the given tenant resource id.
func WithResID(ctx context.Context, resID string) context.Context {
	return context.WithValue(ctx, contextkeys.ResIDKey, resID)
}

// WithRequestID returns a copy of ctx carrying the given request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextkeys.RequestIDKey, requestID)
}
