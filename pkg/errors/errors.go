package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so cloned errors still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Generic errors.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrRateLimited  = New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests")
)

// Rotation and redemption errors.
var (
	ErrMintFailure            = New("MINT_FAILURE", http.StatusInternalServerError, "failed to generate attendance code")
	ErrLedgerUnavailable      = New("LEDGER_UNAVAILABLE", http.StatusServiceUnavailable, "ledger not available")
	ErrLedgerCallFailure      = New("LEDGER_CALL_FAILURE", http.StatusBadGateway, "ledger call failed")
	ErrPersistenceFailure     = New("PERSISTENCE_FAILURE", http.StatusInternalServerError, "failed to store attendance data")
	ErrInvalidOrExpiredCode   = New("INVALID_OR_EXPIRED_CODE", http.StatusBadRequest, "invalid or expired attendance code")
	ErrOutsideGeofence        = New("OUTSIDE_GEOFENCE", http.StatusForbidden, "you are outside the allowed campus area")
	ErrGeolocationUnavailable = New("GEOLOCATION_UNAVAILABLE", http.StatusBadRequest, "location is required to mark attendance")
	ErrAlreadyRedeemed        = New("ALREADY_REDEEMED", http.StatusConflict, "you have already marked attendance for this session")
	ErrSessionActive          = New("SESSION_ACTIVE", http.StatusConflict, "code generation is already running")
	ErrInvalidBatchSize       = New("INVALID_BATCH_SIZE", http.StatusBadRequest, "batch size must be between 1 and 50")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying extra structured context.
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}
