// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/botboard/botboard/internal/logging"
	"github.com/botboard/botboard/internal/validation"
)

// errorPayload is the error half of the envelope. Optional members are
// omitted so clients can key off their presence.
type errorPayload struct {
	Message    string                  `json:"message"`
	StatusCode int                     `json:"status_code"`
	RequestID  string                  `json:"request_id,omitempty"`
	Detail     string                  `json:"detail,omitempty"`
	Errors     []validation.FieldError `json:"errors,omitempty"`
	RetryAfter int                     `json:"retry_after,omitempty"`
}

type errorEnvelope struct {
	Success bool         `json:"success"`
	Error   errorPayload `json:"error"`
}

// writeJSON renders v with goccy. Encoding failures at this point mean a
// programming bug in a response type; they are logged, and the status
// line has already been sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("response encoding failed")
	}
}

// writeError renders the error envelope. Internal causes are fully logged
// with the request id; the client sees the generic message unless the
// server runs in development mode, where the cause lands in detail.
func writeError(w http.ResponseWriter, r *http.Request, apiErr *Error, development bool) {
	ctx := r.Context()

	evt := logging.Ctx(ctx).Warn()
	if apiErr.Status >= http.StatusInternalServerError {
		evt = logging.Ctx(ctx).Error()
	}
	evt.Err(apiErr.cause).
		Int("status", apiErr.Status).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(apiErr.Message)

	payload := errorPayload{
		Message:    apiErr.Message,
		StatusCode: apiErr.Status,
		RequestID:  logging.RequestIDFromContext(ctx),
		Detail:     apiErr.Detail,
		Errors:     apiErr.Fields,
		RetryAfter: apiErr.RetryAfter,
	}
	if apiErr.Status >= http.StatusInternalServerError {
		payload.Detail = ""
		if development && apiErr.cause != nil {
			payload.Detail = apiErr.cause.Error()
		}
	}

	writeJSON(w, apiErr.Status, errorEnvelope{Error: payload})
}
