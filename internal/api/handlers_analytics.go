// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/botboard/botboard/internal/validation"
)

// cached runs build through the response cache under endpoint+params.
// The caching is explicit cache-aside: concurrent misses for the same key
// each compute the value, and last write wins.
func (s *Server) cached(r *http.Request, endpoint string, params map[string]any, build func() any) any {
	if hit, ok := s.cache.Get(endpoint, params); ok {
		return hit
	}
	value := build()
	s.cache.Set(endpoint, params, value)
	return value
}

// handleDashboard assembles the full dashboard payload: metrics, funnel,
// and the growth series seeded with the pre-window user total.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	params, apiErr := analyticsRequest(r, 7)
	if apiErr != nil {
		s.error(w, r, apiErr)
		return
	}
	if !s.guardBotAccess(w, r, params.BotID) {
		return
	}

	payload := s.cached(r, "analytics:dashboard", map[string]any{"bot_id": params.BotID, "days": params.Days}, func() any {
		metrics := s.store.GetDashboardMetrics(r.Context(), params.BotID, params.Days)
		funnel := s.store.GetFunnelStats(r.Context(), params.BotID, params.Days)

		baseTotal := metrics.TotalUsers - metrics.NewUsers
		if baseTotal < 0 {
			baseTotal = 0
		}
		growth := s.store.GetUserGrowth(r.Context(), params.BotID, params.Days, baseTotal)

		return map[string]any{
			"bot_id":       params.BotID,
			"metrics":      metrics,
			"funnel":       funnel,
			"user_growth":  growth,
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		}
	})
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	params, apiErr := analyticsRequest(r, 7)
	if apiErr != nil {
		s.error(w, r, apiErr)
		return
	}
	if !s.guardBotAccess(w, r, params.BotID) {
		return
	}

	payload := s.cached(r, "analytics:metrics", map[string]any{"bot_id": params.BotID, "days": params.Days}, func() any {
		return map[string]any{
			"success":     true,
			"bot_id":      params.BotID,
			"period_days": params.Days,
			"metrics":     s.store.GetDashboardMetrics(r.Context(), params.BotID, params.Days),
		}
	})
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleFunnel(w http.ResponseWriter, r *http.Request) {
	params, apiErr := analyticsRequest(r, 7)
	if apiErr != nil {
		s.error(w, r, apiErr)
		return
	}
	if !s.guardBotAccess(w, r, params.BotID) {
		return
	}

	payload := s.cached(r, "analytics:funnel", map[string]any{"bot_id": params.BotID, "days": params.Days}, func() any {
		return map[string]any{
			"success":     true,
			"bot_id":      params.BotID,
			"period_days": params.Days,
			"funnel":      s.store.GetFunnelStats(r.Context(), params.BotID, params.Days),
		}
	})
	writeJSON(w, http.StatusOK, payload)
}

// handleDetailed flattens funnel steps into a stage-to-count map next to
// the session totals.
func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	params, apiErr := analyticsRequest(r, 30)
	if apiErr != nil {
		s.error(w, r, apiErr)
		return
	}
	if !s.guardBotAccess(w, r, params.BotID) {
		return
	}

	payload := s.cached(r, "analytics:detailed", map[string]any{"bot_id": params.BotID, "days": params.Days}, func() any {
		metrics := s.store.GetDashboardMetrics(r.Context(), params.BotID, params.Days)
		funnel := s.store.GetFunnelStats(r.Context(), params.BotID, params.Days)

		stages := make(map[string]int, len(funnel.Steps))
		for _, step := range funnel.Steps {
			stages[step.Stage] = step.UsersCount
		}

		return map[string]any{
			"bot_id":         params.BotID,
			"period_days":    params.Days,
			"total_sessions": metrics.TotalSessions,
			"total_users":    metrics.TotalUsers,
			"stages":         stages,
			"events":         []any{},
			"avg_quality":    0.0,
			"generated_at":   time.Now().UTC().Format(time.RFC3339),
		}
	})
	writeJSON(w, http.StatusOK, payload)
}

// handleRecentEvents serves the activity feed. Store failures have
// already degraded to an empty list, so this endpoint never 500s on
// datastore trouble.
func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	params := eventsParams{BotID: chi.URLParam(r, "bot_id")}
	var apiErr *Error
	if params.Limit, apiErr = intQuery(r, "limit", 10); apiErr != nil {
		s.error(w, r, apiErr)
		return
	}
	if verr := validation.Struct(&params); verr != nil {
		s.error(w, r, invalidRequest(verr))
		return
	}
	if !s.guardBotAccess(w, r, params.BotID) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"bot_id":  params.BotID,
		"events":  s.store.GetRecentEvents(r.Context(), params.BotID, params.Limit),
	})
}

// handleExport bundles metrics and funnel for download. CSV is a declared
// fallback: the response says so and carries the JSON data.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	params := exportParams{
		BotID:  chi.URLParam(r, "bot_id"),
		Format: r.URL.Query().Get("format"),
	}
	if params.Format == "" {
		params.Format = "json"
	}
	var apiErr *Error
	if params.Days, apiErr = intQuery(r, "days", 30); apiErr != nil {
		s.error(w, r, apiErr)
		return
	}
	if verr := validation.Struct(&params); verr != nil {
		s.error(w, r, invalidRequest(verr))
		return
	}
	if !s.guardBotAccess(w, r, params.BotID) {
		return
	}

	exportData := map[string]any{
		"bot_id":      params.BotID,
		"period_days": params.Days,
		"exported_at": time.Now().UTC().Format(time.RFC3339),
		"metrics":     s.store.GetDashboardMetrics(r.Context(), params.BotID, params.Days),
		"funnel":      s.store.GetFunnelStats(r.Context(), params.BotID, params.Days),
	}

	if params.Format == "csv" {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "CSV export is not implemented yet, JSON data attached",
			"data":    exportData,
		})
		return
	}
	writeJSON(w, http.StatusOK, exportData)
}
