// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package api

import (
	"net/http"

	"github.com/botboard/botboard/internal/validation"
)

// Error is the API's internal error type. Handlers return or write these;
// the rendering layer turns them into the error envelope. The cause is
// logged but never rendered outside development mode.
type Error struct {
	Status     int
	Message    string
	Detail     string
	Fields     []validation.FieldError
	RetryAfter int
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func badRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message}
}

func unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: message}
}

func forbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Message: message}
}

func notFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Message: message}
}

// invalidRequest maps a validation failure to 422 with the joined detail
// string plus the per-field list.
func invalidRequest(verr *validation.RequestError) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Message: "Validation failed",
		Detail:  verr.Error(),
		Fields:  verr.Fields(),
	}
}

func tooManyRequests(retryAfter int) *Error {
	return &Error{
		Status:     http.StatusTooManyRequests,
		Message:    "Rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

func payloadTooLarge() *Error {
	return &Error{Status: http.StatusRequestEntityTooLarge, Message: "Request body too large"}
}

func gatewayTimeout() *Error {
	return &Error{Status: http.StatusGatewayTimeout, Message: "Request timed out"}
}

func internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "Internal server error", cause: err}
}
