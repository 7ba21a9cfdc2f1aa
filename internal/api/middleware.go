// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/botboard/botboard/internal/logging"
)

// rateLimitExempt lists paths serving infrastructure probes; limiting
// them would turn a load spike into failed health checks.
var rateLimitExempt = map[string]struct{}{
	"/":       {},
	"/health": {},
}

// RateLimit enforces the per-IP fixed windows. Allowed responses carry
// the X-RateLimit headers; rejections get the 429 envelope with
// retry_after in both header and body.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, exempt := rateLimitExempt[r.URL.Path]; exempt {
			next.ServeHTTP(w, r)
			return
		}

		decision := s.limiter.Check(clientIP(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			s.metrics.RateLimitRejects.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
			s.error(w, r, tooManyRequests(decision.RetryAfter))
			return
		}

		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(s.limiter.Reset(), 10))
		next.ServeHTTP(w, r)
	})
}

// SizeLimit rejects oversized bodies by declared Content-Length. Requests
// without a parseable length pass through; chunked uploads are bounded by
// the server's read timeout instead.
func (s *Server) SizeLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("Content-Length"); raw != "" {
			if length, err := strconv.ParseInt(raw, 10, 64); err == nil && length > s.cfg.Server.MaxBodyBytes {
				s.error(w, r, payloadTooLarge())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Timeout bounds handler time. Cancellation is cooperative: the handler's
// context expires and its response is discarded, but in-flight datastore
// work is not interrupted mid-write.
func (s *Server) Timeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Server.RequestTimeout)
		defer cancel()

		buf := &bufferedResponse{header: make(http.Header), status: http.StatusOK}
		done := make(chan struct{})

		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					logging.Ctx(ctx).Error().Interface("panic", rec).Msg("handler panicked under timeout")
					buf.status = http.StatusInternalServerError
					buf.body.Reset()
				}
				close(done)
			}()
			next.ServeHTTP(buf, r.WithContext(ctx))
		}()

		select {
		case <-done:
			buf.copyTo(w)
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				s.error(w, r, gatewayTimeout())
				return
			}
			// Client went away; nothing useful to write.
		}
	})
}

// bufferedResponse holds a handler's full response so the timeout layer
// can decide whether to forward or replace it.
type bufferedResponse struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) { b.status = status }

func (b *bufferedResponse) Write(p []byte) (int, error) { return b.body.Write(p) }

func (b *bufferedResponse) copyTo(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = values
	}
	w.WriteHeader(b.status)
	if b.body.Len() > 0 {
		w.Write(b.body.Bytes())
	}
}

// Observe records request metrics against the chi route pattern, so
// /api/bots/alpha and /api/bots/beta aggregate into one series. It also
// refreshes the cache and pool gauges.
func (s *Server) Observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(r.Method, route, rec.status, time.Since(start))

		stats := s.cache.Stats()
		s.metrics.CacheHits.Set(float64(stats.Hits))
		s.metrics.CacheMisses.Set(float64(stats.Misses))
		s.metrics.CacheSize.Set(float64(stats.Size))
		s.metrics.PoolClients.Set(float64(s.store.Pool().Stats().ActiveClients))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}
