// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/botboard/botboard/internal/logging"
)

const maxLoggedUserAgent = 100

// statusWriter captures the status code and byte count of a response and
// stamps X-Process-Time just before headers flush.
type statusWriter struct {
	http.ResponseWriter
	start       time.Time
	status      int
	bytes       int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.Header().Set("X-Process-Time", fmt.Sprintf("%.6f", time.Since(w.start).Seconds()))
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// RequestLogging emits one record when a request starts and one when it
// completes, and stamps X-Process-Time on the response. Panics are logged
// with the request context and re-raised for the recoverer above.
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		// The dashboard identifies users by a plain cookie; surface it in
		// logs so per-user issues can be traced.
		if cookie, err := r.Cookie("telegram_id"); err == nil {
			if id, err := strconv.ParseInt(cookie.Value, 10, 64); err == nil {
				ctx = logging.ContextWithUserID(ctx, id)
				r = r.WithContext(ctx)
			}
		}

		logging.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Str("remote_ip", clientIP(r)).
			Str("user_agent", truncate(r.UserAgent(), maxLoggedUserAgent)).
			Msg("request started")

		sw := &statusWriter{ResponseWriter: w, start: start}

		defer func() {
			duration := time.Since(start)
			if rec := recover(); rec != nil {
				logging.Ctx(ctx).Error().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Dur("duration", duration).
					Interface("panic", rec).
					Msg("request panicked")
				panic(rec)
			}
			logging.Ctx(ctx).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Int("bytes", sw.bytes).
				Dur("duration", duration).
				Msg("request completed")
		}()

		next.ServeHTTP(sw, r)
	})
}

func clientIP(r *http.Request) string {
	return r.RemoteAddr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
