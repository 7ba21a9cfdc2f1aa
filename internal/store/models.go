// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package store

import (
	"time"

	"github.com/goccy/go-json"
)

// UserInfo is a dashboard user row from sales_users.
type UserInfo struct {
	TelegramID   int64  `json:"telegram_id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	IsActive     bool   `json:"is_active"`
}

// DashboardMetrics is the headline metrics block. Revenue figures are
// fixed at zero until a payments table exists.
type DashboardMetrics struct {
	TotalRevenue   float64 `json:"total_revenue"`
	NewUsers       int     `json:"new_users"`
	ConversionRate float64 `json:"conversion_rate"`
	AverageCheck   float64 `json:"average_check"`
	LTV            float64 `json:"ltv"`
	ActiveToday    int     `json:"active_today"`
	TotalUsers     int     `json:"total_users"`
	TotalSessions  int     `json:"total_sessions"`
	PeriodDays     int     `json:"period_days"`
}

// FunnelStep is one stage of the sales funnel.
type FunnelStep struct {
	Stage      string  `json:"stage"`
	UsersCount int     `json:"users_count"`
	Percentage float64 `json:"percentage"`
	Revenue    float64 `json:"revenue"`
	AvgCheck   float64 `json:"avg_check"`
}

// FunnelStats aggregates sessions over the fixed stage order.
type FunnelStats struct {
	Steps           []FunnelStep `json:"steps"`
	TotalUsers      int          `json:"total_users"`
	TotalConversion float64      `json:"total_conversion"`
}

// GrowthPoint is one day of the user growth series.
type GrowthPoint struct {
	Date        string `json:"date"`
	TotalUsers  int    `json:"total_users"`
	NewUsers    int    `json:"new_users"`
	ActiveUsers int    `json:"active_users"`
}

// Event is a dashboard-facing entry parsed from
// scheduled_events.info_dashboard.
type Event struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// flexID tolerates datastore ids arriving as either JSON numbers or
// strings, normalizing both to their textual form.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*f = flexID(str)
		return nil
	}
	*f = flexID(s)
	return nil
}

// Internal row shapes for PostgREST result decoding.

type adminRow struct {
	BotID string `json:"bot_id"`
}

type userCreatedRow struct {
	TelegramID int64  `json:"telegram_id"`
	CreatedAt  string `json:"created_at"`
}

type sessionRow struct {
	ID           flexID `json:"id"`
	UserID       int64  `json:"user_id"`
	CurrentStage string `json:"current_stage"`
	CreatedAt    string `json:"created_at"`
}

type messageRow struct {
	SessionID flexID `json:"session_id"`
}

type eventRow struct {
	InfoDashboard json.RawMessage `json:"info_dashboard"`
}

// parseTimestamp accepts the timestamp spellings Supabase emits.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	// Postgres timestamps often come back without a zone suffix.
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
