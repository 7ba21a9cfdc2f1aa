// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package api

import (
	"net/http"
	"time"

	"github.com/botboard/botboard/internal/logging"
)

// handleRoot is the service banner.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Telegram Bot Dashboard API",
		"version": Version,
		"status":  "running",
	})
}

// handleHealth probes the datastore and reports pool and cache state.
// An unhealthy datastore still answers 200: orchestrators reading the
// body decide, and a 5xx here would mask which dependency failed.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	timestamp := time.Now().UTC().Format(time.RFC3339)

	if err := s.store.Ping(r.Context()); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     err.Error(),
			"timestamp": timestamp,
		})
		return
	}

	payload := map[string]any{
		"status":          "healthy",
		"database":        "connected",
		"connection_pool": s.store.Pool().Stats(),
		"timestamp":       timestamp,
	}
	if s.cfg.Cache.Enabled {
		payload["cache"] = s.cache.Stats()
	}
	writeJSON(w, http.StatusOK, payload)
}
