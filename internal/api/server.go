// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

// Package api implements the HTTP surface of the dashboard: handlers,
// request validation, the response envelope, and the envelope-writing
// middlewares (timeout, body size, rate limiting).
package api

import (
	"net"
	"net/http"

	"github.com/botboard/botboard/internal/cache"
	"github.com/botboard/botboard/internal/config"
	"github.com/botboard/botboard/internal/metrics"
	"github.com/botboard/botboard/internal/ratelimit"
	"github.com/botboard/botboard/internal/store"
)

// Version is the service version reported by the root banner.
const Version = "1.0.0"

// Server wires the handlers to their dependencies.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
}

// NewServer constructs the handler set. All dependencies are required.
func NewServer(cfg *config.Config, st *store.Store, c *cache.Cache, limiter *ratelimit.Limiter, m *metrics.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		cache:   c,
		limiter: limiter,
		metrics: m,
	}
}

func (s *Server) error(w http.ResponseWriter, r *http.Request, apiErr *Error) {
	writeError(w, r, apiErr, s.cfg.IsDevelopment())
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already folded X-Forwarded-For into RemoteAddr by the time this runs.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
