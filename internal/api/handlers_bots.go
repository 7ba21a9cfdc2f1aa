// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/botboard/botboard/internal/validation"
)

type botCard struct {
	BotID       string  `json:"bot_id"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	Total       int     `json:"total"`
	CreatedAt   *string `json:"created_at"`
	Description string  `json:"description"`
}

// guardBotAccess authorizes the cookie user for botID. Missing cookie is
// 401; a valid user without this bot in their list is 403. Returns false
// after writing the error.
func (s *Server) guardBotAccess(w http.ResponseWriter, r *http.Request, botID string) bool {
	cookie, err := r.Cookie("telegram_id")
	if err != nil {
		s.error(w, r, unauthorized("Authentication required"))
		return false
	}
	userID, err := strconv.ParseInt(cookie.Value, 10, 64)
	if err != nil {
		s.error(w, r, unauthorized("Authentication required"))
		return false
	}

	bots := s.store.GetUserBots(r.Context(), userID)
	if !slices.Contains(bots, botID) {
		s.error(w, r, forbidden("Access to this bot is denied"))
		return false
	}
	return true
}

// botName renders a display name from the id: "sales-demo" becomes
// "Sales Demo".
func botName(botID string) string {
	words := strings.Split(strings.ReplaceAll(botID, "-", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// handleListBots returns card summaries for every bot the user
// administers.
func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegram_id"), 10, 64)
	if err != nil {
		s.error(w, r, badRequest("telegram_id must be an integer"))
		return
	}

	botIDs := s.store.GetUserBots(r.Context(), telegramID)
	cards := make([]botCard, 0, len(botIDs))
	for _, botID := range botIDs {
		cards = append(cards, botCard{
			BotID:       botID,
			Name:        botName(botID),
			Status:      "active",
			Total:       s.store.CountBotUsers(r.Context(), botID),
			Description: "Bot " + botID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"telegram_id": telegramID,
		"bots":        cards,
	})
}

// handleBotInfo returns the 30-day metrics bundle for one bot.
func (s *Server) handleBotInfo(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "bot_id")
	if verr := validation.Struct(&analyticsParams{BotID: botID, Days: 30}); verr != nil {
		s.error(w, r, invalidRequest(verr))
		return
	}
	if !s.guardBotAccess(w, r, botID) {
		return
	}

	metrics := s.store.GetDashboardMetrics(r.Context(), botID, 30)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"bot": map[string]any{
			"bot_id":         botID,
			"name":           botName(botID),
			"status":         "active",
			"total_users":    metrics.TotalUsers,
			"total_sessions": metrics.TotalSessions,
			"created_at":     nil,
			"description":    "Telegram bot " + botID,
			"metrics":        metrics,
		},
	})
}

// handleBotUsers is a declared stub: the user listing is not backed by a
// query yet, so it returns an empty page that echoes the pagination.
func (s *Server) handleBotUsers(w http.ResponseWriter, r *http.Request) {
	params := usersParams{BotID: chi.URLParam(r, "bot_id")}
	var apiErr *Error
	if params.Limit, apiErr = intQuery(r, "limit", 100); apiErr != nil {
		s.error(w, r, apiErr)
		return
	}
	if params.Offset, apiErr = intQuery(r, "offset", 0); apiErr != nil {
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
		"users":   []any{},
		"total":   0,
		"limit":   params.Limit,
		"offset":  params.Offset,
	})
}
