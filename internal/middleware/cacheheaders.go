// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package middleware

import (
	"fmt"
	"net/http"
	"strings"
)

// Cache lifetimes per endpoint family, in seconds. Analytics data moves
// fast; bot info is nearly static.
const (
	analyticsMaxAge = 30
	botInfoMaxAge   = 3600
	botsMaxAge      = 300
)

// CacheHeaders sets Cache-Control on successful GET responses to the API
// endpoint families the frontend polls. Other responses pass untouched.
func CacheHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		maxAge := cacheMaxAge(r)
		if r.Method != http.MethodGet || maxAge == 0 {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(&cacheHeaderWriter{ResponseWriter: w, maxAge: maxAge}, r)
	})
}

func cacheMaxAge(r *http.Request) int {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/analytics/"):
		return analyticsMaxAge
	case strings.HasPrefix(path, "/api/bots/") && strings.HasSuffix(path, "/info"):
		return botInfoMaxAge
	case strings.HasPrefix(path, "/api/bots/"):
		return botsMaxAge
	default:
		return 0
	}
}

type cacheHeaderWriter struct {
	http.ResponseWriter
	maxAge      int
	wroteHeader bool
}

func (w *cacheHeaderWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		// A 304 must carry the same directive as the 200 it revalidates,
		// or the client drops its caching policy.
		if status == http.StatusOK || status == http.StatusNotModified {
			w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, must-revalidate", w.maxAge))
			w.Header().Set("Vary", "Accept-Encoding")
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *cacheHeaderWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
