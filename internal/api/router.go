// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/botboard/botboard/internal/middleware"
)

// authBurstLimit bounds sign-in attempts per IP per minute, on top of the
// global limiter, to slow credential-stuffing against the widget payload.
const authBurstLimit = 10

// Router assembles the full middleware pipeline and route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogging)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Compression)
	r.Use(s.Observe)
	r.Use(s.Timeout)
	r.Use(s.SizeLimit)
	r.Use(s.RateLimit)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.CacheHeaders)
	if s.cfg.Server.ETagEnabled {
		r.Use(middleware.ETag)
	}
	r.Use(middleware.SecurityHeaders)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(httprate.LimitByIP(authBurstLimit, time.Minute)).
				Post("/telegram", s.handleTelegramAuth)
			r.With(httprate.LimitByIP(authBurstLimit, time.Minute)).
				Post("/verify-hash", s.handleVerifyHash)
			r.Get("/user/{telegram_id}", s.handleGetUser)
		})

		r.Route("/bots", func(r chi.Router) {
			r.Get("/{telegram_id:[0-9]+}", s.handleListBots)
			r.Get("/{bot_id}/info", s.handleBotInfo)
			r.Get("/{bot_id}/users", s.handleBotUsers)
		})

		r.Route("/analytics/{bot_id}", func(r chi.Router) {
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/metrics", s.handleMetrics)
			r.Get("/funnel", s.handleFunnel)
			r.Get("/detailed", s.handleDetailed)
			r.Get("/recent-events", s.handleRecentEvents)
			r.Get("/export", s.handleExport)
		})
	})

	return r
}
