package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a server error along the boundary taxonomy.
type ErrorKind string

const (
	KindBadRequest        ErrorKind = "BAD_REQUEST"
	KindUnauthorized      ErrorKind = "UNAUTHORIZED"
	KindForbidden         ErrorKind = "FORBIDDEN"
	KindQuotaExceeded     ErrorKind = "QUOTA_EXCEEDED"
	KindRateLimitExceeded ErrorKind = "RATE_LIMIT_EXCEEDED"
	KindCursorNotFound    ErrorKind = "CURSOR_NOT_FOUND"
	KindStorage           ErrorKind = "STORAGE_ERROR"
	KindInternal          ErrorKind = "INTERNAL_ERROR"
)

// Common sentinel errors
var (
	ErrNoSession         = errors.New("there is no session_id cookie")
	ErrNoAccess          = errors.New("user does not have access to res_id")
	ErrReservedNamespace = errors.New("access to reserved namespace is forbidden")
	ErrCursorNotFound    = errors.New("cursor not found")
)

// MWSError is the uniform error for the whole service boundary. It carries
// an HTTP-style status, a human-readable reason and an optional detail, and
// marshals to the wire envelope {error, reason, detail}.
type MWSError struct {
	Kind       ErrorKind `json:"-"`
	HTTPStatus int       `json:"error"`
	Reason     string    `json:"reason"`
	Detail     string    `json:"detail"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *MWSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

// Unwrap returns the wrapped cause.
func (e *MWSError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches detail text to the error.
func (e *MWSError) WithDetail(detail string) *MWSError {
	e.Detail = detail
	return e
}

// WithCause attaches the underlying cause.
func (e *MWSError) WithCause(cause error) *MWSError {
	e.Cause = cause
	return e
}

// New creates an MWSError with an explicit kind and status.
func New(kind ErrorKind, status int, reason string) *MWSError {
	return &MWSError{Kind: kind, HTTPStatus: status, Reason: reason}
}

// NewBadRequest creates a malformed-argument error (HTTP 400).
func NewBadRequest(reason string) *MWSError {
	return New(KindBadRequest, http.StatusBadRequest, reason)
}

// NewUnauthorized creates a missing-identity error (HTTP 401).
func NewUnauthorized(reason string) *MWSError {
	return New(KindUnauthorized, http.StatusUnauthorized, reason)
}

// NewForbidden creates an access-denied error (HTTP 403).
func NewForbidden(reason string) *MWSError {
	return New(KindForbidden, http.StatusForbidden, reason)
}

// NewCollectionQuotaExceeded reports the per-tenant collection-count quota
// being hit (HTTP 429).
func NewCollectionQuotaExceeded() *MWSError {
	return New(KindQuotaExceeded, http.StatusTooManyRequests, "Max number of collections exceeded")
}

// NewSizeQuotaExceeded reports the per-collection byte quota being hit.
// The original service reported this as 403, which the boundary preserves.
func NewSizeQuotaExceeded() *MWSError {
	return New(KindQuotaExceeded, http.StatusForbidden, "Collection size exceeded")
}

// NewRateLimitExceeded reports the sliding-window request quota being hit (HTTP 429).
func NewRateLimitExceeded() *MWSError {
	return New(KindRateLimitExceeded, http.StatusTooManyRequests, "Rate limit exceeded")
}

// NewCursorNotFound reports a resume attempt against an expired or unknown
// cursor id. Clients must restart the query; the status is 400, not 500.
func NewCursorNotFound(cursorID int64) *MWSError {
	e := New(KindCursorNotFound, http.StatusBadRequest, "Cursor not found")
	e.Detail = fmt.Sprintf("cursor_id %d is unknown or has expired", cursorID)
	e.Cause = ErrCursorNotFound
	return e
}

// NewStorageError wraps a backing-store failure (HTTP 500). Raw storage
// client errors never cross the boundary unwrapped.
func NewStorageError(reason string, cause error) *MWSError {
	return New(KindStorage, http.StatusInternalServerError, reason).WithCause(cause)
}

// NewInternal creates a generic internal error (HTTP 500).
func NewInternal(reason string) *MWSError {
	return New(KindInternal, http.StatusInternalServerError, reason)
}

// AsMWSError extracts an *MWSError from err, or wraps err as an internal
// storage error when it is something else.
func AsMWSError(err error) *MWSError {
	var mwsErr *MWSError
	if errors.As(err, &mwsErr) {
		return mwsErr
	}
	return NewStorageError("An unexpected error occurred", err)
}

// IsQuotaExceeded checks whether err is a collection-count or byte-size quota error.
func IsQuotaExceeded(err error) bool {
	var mwsErr *MWSError
	if errors.As(err, &mwsErr) {
		return mwsErr.Kind == KindQuotaExceeded
	}
	return false
}

// IsRateLimitExceeded checks whether err is a rate-limit rejection.
func IsRateLimitExceeded(err error) bool {
	var mwsErr *MWSError
	if errors.As(err, &mwsErr) {
		return mwsErr.Kind == KindRateLimitExceeded
	}
	return false
}

// IsCursorNotFound checks whether err is a cursor resume failure.
func IsCursorNotFound(err error) bool {
	var mwsErr *MWSError
	if errors.As(err, &mwsErr) {
		return mwsErr.Kind == KindCursorNotFound
	}
	return errors.Is(err, ErrCursorNotFound)
}

// IsForbidden checks whether err is an access-denied error.
func IsForbidden(err error) bool {
	var mwsErr *MWSError
	if errors.As(err, &mwsErr) {
		return mwsErr.Kind == KindForbidden
	}
	return errors.Is(err, ErrNoAccess) || errors.Is(err, ErrReservedNamespace)
}

// IsStorage checks whether err is a wrapped backing-store failure.
func IsStorage(err error) bool {
	var mwsErr *MWSError
	if errors.As(err, &mwsErr) {
		return mwsErr.Kind == KindStorage
	}
	return false
}
