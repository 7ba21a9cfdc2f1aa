// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

// Package middleware contains the header and logging layers of the
// request pipeline. Middlewares that write error envelopes live next to
// the response helpers in internal/api.
package middleware

import (
	"net/http"

	"github.com/botboard/botboard/internal/logging"
)

// RequestID propagates an upstream X-Request-ID or mints a UUID, placing
// it in the request context and echoing it on the response so clients can
// correlate error reports with server logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
