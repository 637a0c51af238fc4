package client

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors - use with errors.Is()
var (
	ErrInvalidBaseURL   = errors.New("floodgate: invalid base URL")
	ErrCircuitOpen      = errors.New("floodgate: circuit breaker open")
	ErrResponseTooLarge = errors.New("floodgate: response too large")
)

// APIError represents a failed call against the upstream API. It exposes
// HTTPStatus, RetryAfter, and FloodWait accessors so package classify can
// type the failure without depending on this package.
type APIError struct {
	Status      int    // HTTP status code
	Code        string // upstream error_code, e.g. "FLOOD_WAIT_42"
	Description string
	Endpoint    string

	retryAfter time.Duration
	floodWait  time.Duration
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("floodgate: %s failed: %s", e.Endpoint, e.Description)
	if e.Code != "" {
		msg += fmt.Sprintf(" (code=%s, status=%d)", e.Code, e.Status)
	} else {
		msg += fmt.Sprintf(" (status=%d)", e.Status)
	}
	return msg
}

// HTTPStatus returns the HTTP status code of the failed call.
func (e *APIError) HTTPStatus() int { return e.Status }

// RetryAfter returns the server's retry hint, or zero when absent.
func (e *APIError) RetryAfter() time.Duration { return e.retryAfter }

// FloodWait returns the flood-control wait demanded by the remote protocol
// layer, or zero when this is not a flood-control failure.
func (e *APIError) FloodWait() time.Duration { return e.floodWait }

// NewAPIError creates an APIError without throttling hints.
func NewAPIError(endpoint string, status int, code, description string) *APIError {
	return &APIError{
		Status:      status,
		Code:        code,
		Description: description,
		Endpoint:    endpoint,
	}
}

// NewRateLimitAPIError creates an APIError for an HTTP 429 response.
func NewRateLimitAPIError(endpoint string, retryAfter time.Duration, description string) *APIError {
	return &APIError{
		Status:      429,
		Description: description,
		Endpoint:    endpoint,
		retryAfter:  retryAfter,
	}
}

// NewFloodWaitAPIError creates an APIError for a flood-control failure.
func NewFloodWaitAPIError(endpoint string, wait time.Duration, code, description string) *APIError {
	return &APIError{
		Status:      200,
		Code:        code,
		Description: description,
		Endpoint:    endpoint,
		floodWait:   wait,
	}
}

// ValidationError represents a request validation error caught before any
// remote call is attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("floodgate: validation: %s - %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
