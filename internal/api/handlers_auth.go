// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/botboard/botboard/internal/logging"
	"github.com/botboard/botboard/internal/store"
	"github.com/botboard/botboard/internal/telegram"
	"github.com/botboard/botboard/internal/validation"
)

type authResponse struct {
	Success    bool     `json:"success"`
	TelegramID int64    `json:"telegram_id"`
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name,omitempty"`
	Username   string   `json:"username,omitempty"`
	Bots       []string `json:"bots"`
	Message    string   `json:"message"`
}

// handleTelegramAuth processes a Telegram Login Widget sign-in: verify
// the widget signature, check freshness, upsert the user, and hand back
// the bot list plus the identifying cookie.
func (s *Server) handleTelegramAuth(w http.ResponseWriter, r *http.Request) {
	var req telegramAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, r, badRequest("Invalid JSON body"))
		return
	}
	if verr := validation.Struct(&req); verr != nil {
		s.error(w, r, invalidRequest(verr))
		return
	}

	// The widget signs its own field names: id, not telegram_id.
	// Optional fields participate only when present, or the check string
	// would never match.
	payload := map[string]string{
		"id":         strconv.FormatInt(req.TelegramID, 10),
		"first_name": req.FirstName,
		"auth_date":  strconv.FormatInt(req.AuthDate, 10),
		telegram.HashField: req.Hash,
	}
	if req.LastName != "" {
		payload["last_name"] = req.LastName
	}
	if req.Username != "" {
		payload["username"] = req.Username
	}
	if req.PhotoURL != "" {
		payload["photo_url"] = req.PhotoURL
	}

	if !telegram.Verify(payload, s.cfg.Telegram.BotToken) {
		logging.Ctx(r.Context()).Warn().
			Int64("telegram_id", req.TelegramID).
			Msg("telegram signature rejected")
		s.error(w, r, badRequest("Invalid Telegram authentication signature"))
		return
	}

	if !telegram.CheckFreshness(req.AuthDate, s.cfg.Telegram.AuthMaxAge) {
		s.error(w, r, badRequest("Authentication data expired, please sign in again"))
		return
	}

	user := store.UserInfo{
		TelegramID: req.TelegramID,
		Username:   req.Username,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
	}
	if err := s.store.CreateOrUpdateUser(r.Context(), user); err != nil {
		s.error(w, r, internal(fmt.Errorf("persist user: %w", err)))
		return
	}

	bots := s.store.GetUserBots(r.Context(), req.TelegramID)

	http.SetCookie(w, &http.Cookie{
		Name:     "telegram_id",
		Value:    strconv.FormatInt(req.TelegramID, 10),
		Path:     "/",
		MaxAge:   int(s.cfg.Telegram.AuthMaxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})

	logging.Ctx(r.Context()).Info().
		Int64("telegram_id", req.TelegramID).
		Int("bots", len(bots)).
		Msg("telegram sign-in completed")

	writeJSON(w, http.StatusOK, authResponse{
		Success:    true,
		TelegramID: req.TelegramID,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Username:   req.Username,
		Bots:       bots,
		Message:    "Authorization successful",
	})
}

// handleVerifyHash is a diagnostic endpoint: it runs the signature check
// over an arbitrary payload without any side effects.
func (s *Server) handleVerifyHash(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		s.error(w, r, badRequest("Invalid JSON body"))
		return
	}

	payload := make(map[string]string, len(raw))
	for k, v := range raw {
		switch value := v.(type) {
		case string:
			payload[k] = value
		case json.Number:
			payload[k] = value.String()
		default:
			payload[k] = fmt.Sprint(value)
		}
	}

	valid := telegram.Verify(payload, s.cfg.Telegram.BotToken)
	message := "Signature is invalid"
	if valid {
		message = "Signature is valid"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   valid,
		"message": message,
	})
}

// handleGetUser returns a stored user's profile and bot list.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegram_id"), 10, 64)
	if err != nil {
		s.error(w, r, badRequest("telegram_id must be an integer"))
		return
	}

	user, err := s.store.GetUserInfo(r.Context(), telegramID)
	if err != nil {
		s.error(w, r, internal(fmt.Errorf("load user: %w", err)))
		return
	}
	if user == nil {
		s.error(w, r, notFound("User not found"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
		"bots":    s.store.GetUserBots(r.Context(), telegramID),
	})
}
