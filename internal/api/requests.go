// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/botboard/botboard/internal/validation"
)

// telegramAuthRequest is the Telegram Login Widget payload as the
// frontend forwards it. The widget's `id` arrives as telegram_id; the
// signature check rebuilds the original field names.
type telegramAuthRequest struct {
	TelegramID int64  `json:"telegram_id" validate:"required"`
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name"`
	Username   string `json:"username"`
	PhotoURL   string `json:"photo_url"`
	AuthDate   int64  `json:"auth_date" validate:"required"`
	Hash       string `json:"hash" validate:"required"`
}

type analyticsParams struct {
	BotID string `json:"bot_id" validate:"required,bot_id"`
	Days  int    `json:"days" validate:"min=1,max=365"`
}

type eventsParams struct {
	BotID string `json:"bot_id" validate:"required,bot_id"`
	Limit int    `json:"limit" validate:"min=1,max=50"`
}

type usersParams struct {
	BotID  string `json:"bot_id" validate:"required,bot_id"`
	Limit  int    `json:"limit" validate:"min=1,max=1000"`
	Offset int    `json:"offset" validate:"min=0"`
}

type exportParams struct {
	BotID  string `json:"bot_id" validate:"required,bot_id"`
	Days   int    `json:"days" validate:"min=1,max=365"`
	Format string `json:"format" validate:"oneof=json csv"`
}

// analyticsRequest parses and validates the bot_id path param and the
// days query param shared by the analytics endpoints.
func analyticsRequest(r *http.Request, defaultDays int) (analyticsParams, *Error) {
	params := analyticsParams{
		BotID: chi.URLParam(r, "bot_id"),
		Days:  defaultDays,
	}
	var err *Error
	params.Days, err = intQuery(r, "days", defaultDays)
	if err != nil {
		return params, err
	}
	if verr := validation.Struct(&params); verr != nil {
		return params, invalidRequest(verr)
	}
	return params, nil
}

// intQuery reads an optional integer query parameter. A present but
// non-numeric value is a validation failure, not a silent default.
func intQuery(r *http.Request, name string, fallback int) (int, *Error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &Error{
			Status:  http.StatusUnprocessableEntity,
			Message: "Validation failed",
			Detail:  name + " must be an integer",
			Fields:  []validation.FieldError{{Field: name, Message: name + " must be an integer"}},
		}
	}
	return n, nil
}
