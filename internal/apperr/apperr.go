// Package apperr defines the single typed error that crosses operation
// boundaries: an HTTP status plus a client-safe message. Handlers render it
// into the uniform response envelope without modification.
package apperr

import (
	"errors"
	"net/http"
)

// Error carries the HTTP status and a message safe to return to clients.
type Error struct {
	Status  int
	Message string
}

func (apiError *Error) Error() string {
	return apiError.Message
}

// New constructs an Error with an explicit status.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// BadRequest flags missing or malformed request input.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, message)
}

// Unauthorized flags a missing, invalid, expired, or revoked credential.
func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

// Forbidden flags an authenticated caller acting on a resource it does not own.
func Forbidden(message string) *Error {
	return New(http.StatusForbidden, message)
}

// NotFound flags an identifier that does not resolve.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

// Conflict flags a duplicate unique field on creation.
func Conflict(message string) *Error {
	return New(http.StatusConflict, message)
}

// Internal flags an unexpected failure with a generic client message.
func Internal() *Error {
	return New(http.StatusInternalServerError, "Something went wrong")
}

// From returns err as an *Error, collapsing anything untyped to Internal so
// underlying causes never leak to clients.
func From(err error) *Error {
	var apiError *Error
	if errors.As(err, &apiError) {
		return apiError
	}
	return Internal()
}
