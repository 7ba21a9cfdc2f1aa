// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/botboard/botboard/internal/logging"
)

// funnelStages is the fixed stage order of the sales funnel; the last
// stage's percentage is the total conversion.
var funnelStages = []string{"introduction", "interest", "consideration", "intent", "purchase"}

// systemBotID tags users created during dashboard registration, before
// they belong to any bot.
const systemBotID = "system"

// Store implements the dashboard's data access on top of a client pool.
//
// The analytics queries degrade rather than fail: a datastore error is
// logged and an empty or zero-valued result is returned, so the dashboard
// renders empty charts instead of an error page. Callers that need to
// distinguish get the error back (user lookup and writes).
type Store struct {
	pool *Pool

	// now is injectable for tests.
	now func() time.Time
}

// New creates a Store over the given pool.
func New(pool *Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Pool exposes the underlying pool for health reporting.
func (s *Store) Pool() *Pool { return s.pool }

// Ping verifies datastore reachability via the unscoped client.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.GetOrCreate("").Ping(ctx)
}

// GetUserBots returns the bot ids the user administers, from sales_admins.
// Errors degrade to an empty list; an empty list also means "no access".
func (s *Store) GetUserBots(ctx context.Context, telegramID int64) []string {
	var rows []adminRow
	err := s.pool.GetOrCreate("").
		Table("sales_admins").
		Select("bot_id").
		Eq("telegram_id", telegramID).
		Execute(ctx, &rows)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Int64("telegram_id", telegramID).
			Msg("bot list query failed")
		return []string{}
	}

	seen := make(map[string]struct{}, len(rows))
	bots := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.BotID == "" {
			continue
		}
		if _, dup := seen[row.BotID]; dup {
			continue
		}
		seen[row.BotID] = struct{}{}
		bots = append(bots, row.BotID)
	}
	sort.Strings(bots)
	return bots
}

// GetUserInfo fetches one user from sales_users. Returns (nil, nil) when
// the user does not exist.
func (s *Store) GetUserInfo(ctx context.Context, telegramID int64) (*UserInfo, error) {
	var rows []UserInfo
	err := s.pool.GetOrCreate("").
		Table("sales_users").
		Select("telegram_id", "username", "first_name", "last_name",
			"language_code", "created_at", "updated_at", "is_active").
		Eq("telegram_id", telegramID).
		Limit(1).
		Execute(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("user info query: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CreateOrUpdateUser upserts a dashboard user after Telegram login. New
// users are created under the system bot id; existing users get their
// profile fields refreshed and is_active set.
func (s *Store) CreateOrUpdateUser(ctx context.Context, user UserInfo) error {
	client := s.pool.GetOrCreate("")

	existing, err := s.GetUserInfo(ctx, user.TelegramID)
	if err != nil {
		return err
	}

	if existing != nil {
		changes := map[string]any{
			"username":   user.Username,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"updated_at": s.now().UTC().Format(time.RFC3339),
			"is_active":  true,
		}
		if err := client.Table("sales_users").Eq("telegram_id", user.TelegramID).Update(ctx, changes); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	}

	row := map[string]any{
		"telegram_id": user.TelegramID,
		"username":    user.Username,
		"first_name":  user.FirstName,
		"last_name":   user.LastName,
		"is_active":   true,
		"bot_id":      systemBotID,
	}
	if err := client.Table("sales_users").Insert(ctx, row); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CountBotUsers counts a bot's users excluding the literal "Test"
// account. Errors degrade to zero so one broken tenant does not break
// the whole bot list.
func (s *Store) CountBotUsers(ctx context.Context, botID string) int {
	var rows []userCreatedRow
	err := s.pool.GetOrCreate(botID).
		Table("sales_users").
		Select("telegram_id").
		Eq("bot_id", botID).
		Neq("first_name", "Test").
		Execute(ctx, &rows)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("bot_id", botID).Msg("user count query failed")
		return 0
	}
	return len(rows)
}

// GetDashboardMetrics computes the headline metrics over the trailing
// window. Test accounts (first_name LIKE 'Test%') are excluded from every
// count. Errors degrade to a zero-valued result carrying period_days.
func (s *Store) GetDashboardMetrics(ctx context.Context, botID string, days int) DashboardMetrics {
	degraded := DashboardMetrics{PeriodDays: days}

	now := s.now().UTC()
	cutoff := now.AddDate(0, 0, -days)
	client := s.pool.GetOrCreate(botID)

	var users []userCreatedRow
	err := client.Table("sales_users").
		Select("telegram_id", "created_at").
		Eq("bot_id", botID).
		NotLike("first_name", "Test%").
		Execute(ctx, &users)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("bot_id", botID).Msg("metrics user query failed")
		return degraded
	}

	userIDs := make([]int64, 0, len(users))
	newUsers := 0
	for _, u := range users {
		userIDs = append(userIDs, u.TelegramID)
		if t, ok := parseTimestamp(u.CreatedAt); ok && !t.Before(cutoff) {
			newUsers++
		}
	}

	sessionsQuery := client.Table("sales_chat_sessions").
		Select("id", "user_id", "current_stage", "created_at").
		Eq("bot_id", botID).
		Gte("created_at", cutoff.Format(time.RFC3339))
	if len(userIDs) > 0 {
		sessionsQuery = sessionsQuery.InInt64("user_id", userIDs)
	}
	var sessions []sessionRow
	if err := sessionsQuery.Execute(ctx, &sessions); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("bot_id", botID).Msg("metrics session query failed")
		return degraded
	}

	activeToday := 0
	if len(sessions) > 0 {
		sessionIDs := make([]string, len(sessions))
		for i, sess := range sessions {
			sessionIDs[i] = string(sess.ID)
		}

		var messages []messageRow
		err := client.Table("sales_messages").
			Select("session_id").
			In("session_id", sessionIDs).
			Eq("role", "user").
			Gte("created_at", now.Format("2006-01-02")).
			Execute(ctx, &messages)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("bot_id", botID).Msg("metrics message query failed")
			return degraded
		}

		unique := make(map[flexID]struct{}, len(messages))
		for _, m := range messages {
			unique[m.SessionID] = struct{}{}
		}
		activeToday = len(unique)
	}

	return DashboardMetrics{
		NewUsers:      newUsers,
		ActiveToday:   activeToday,
		TotalUsers:    len(users),
		TotalSessions: len(sessions),
		PeriodDays:    days,
	}
}

// GetFunnelStats groups sessions in the window by current_stage over the
// fixed funnel order. Stages outside the known order contribute to the
// total but not to any step. Errors degrade to an empty funnel.
func (s *Store) GetFunnelStats(ctx context.Context, botID string, days int) FunnelStats {
	cutoff := s.now().UTC().AddDate(0, 0, -days)

	var sessions []sessionRow
	err := s.pool.GetOrCreate(botID).
		Table("sales_chat_sessions").
		Select("id", "user_id", "current_stage").
		Eq("bot_id", botID).
		Gte("created_at", cutoff.Format(time.RFC3339)).
		Execute(ctx, &sessions)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("bot_id", botID).Msg("funnel query failed")
		return FunnelStats{Steps: []FunnelStep{}}
	}

	counts := make(map[string]int)
	for _, sess := range sessions {
		counts[sess.CurrentStage]++
	}
	total := len(sessions)

	steps := make([]FunnelStep, 0, len(funnelStages))
	for _, stage := range funnelStages {
		count := counts[stage]
		pct := 0.0
		if total > 0 {
			pct = math.Round(float64(count)/float64(total)*1000) / 10
		}
		steps = append(steps, FunnelStep{
			Stage:      stage,
			UsersCount: count,
			Percentage: pct,
		})
	}

	return FunnelStats{
		Steps:           steps,
		TotalUsers:      total,
		TotalConversion: steps[len(steps)-1].Percentage,
	}
}

// GetUserGrowth builds the per-day growth series for the trailing window.
// baseTotal seeds the running total (the caller passes total minus new
// users so the series ends at the current total). Errors degrade to an
// empty series.
func (s *Store) GetUserGrowth(ctx context.Context, botID string, days, baseTotal int) []GrowthPoint {
	now := s.now().UTC()
	cutoff := now.AddDate(0, 0, -days)
	client := s.pool.GetOrCreate(botID)

	var users []userCreatedRow
	err := client.Table("sales_users").
		Select("telegram_id", "created_at").
		Eq("bot_id", botID).
		NotLike("first_name", "Test%").
		Gte("created_at", cutoff.Format(time.RFC3339)).
		Execute(ctx, &users)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("bot_id", botID).Msg("growth user query failed")
		return []GrowthPoint{}
	}

	var sessions []sessionRow
	err = client.Table("sales_chat_sessions").
		Select("user_id", "created_at").
		Eq("bot_id", botID).
		Gte("created_at", cutoff.Format(time.RFC3339)).
		Execute(ctx, &sessions)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("bot_id", botID).Msg("growth session query failed")
		return []GrowthPoint{}
	}

	realUsers := make(map[int64]struct{}, len(users))
	dailyNew := make(map[string]int)
	for _, u := range users {
		realUsers[u.TelegramID] = struct{}{}
		if t, ok := parseTimestamp(u.CreatedAt); ok {
			dailyNew[t.Format("2006-01-02")]++
		}
	}

	dailyActive := make(map[string]map[int64]struct{})
	for _, sess := range sessions {
		if _, real := realUsers[sess.UserID]; !real {
			continue
		}
		t, ok := parseTimestamp(sess.CreatedAt)
		if !ok {
			continue
		}
		day := t.Format("2006-01-02")
		if dailyActive[day] == nil {
			dailyActive[day] = make(map[int64]struct{})
		}
		dailyActive[day][sess.UserID] = struct{}{}
	}

	points := make([]GrowthPoint, 0, days)
	runningTotal := baseTotal
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -(days - 1 - i))
		day := date.Format("2006-01-02")

		runningTotal += dailyNew[day]
		points = append(points, GrowthPoint{
			Date:        date.Format(time.RFC3339),
			TotalUsers:  runningTotal,
			NewUsers:    dailyNew[day],
			ActiveUsers: len(dailyActive[day]),
		})
	}
	return points
}

// GetRecentEvents returns the latest dashboard events for a bot, parsed
// from scheduled_events.info_dashboard. Rows whose payload cannot be
// parsed are skipped; errors degrade to an empty list.
func (s *Store) GetRecentEvents(ctx context.Context, botID string, limit int) []Event {
	var rows []eventRow
	err := s.pool.GetOrCreate(botID).
		Table("scheduled_events").
		Select("info_dashboard").
		Eq("bot_id", botID).
		NotNull("info_dashboard").
		OrderDesc("created_at").
		Limit(limit).
		Execute(ctx, &rows)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("bot_id", botID).Msg("recent events query failed")
		return []Event{}
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		if ev, ok := decodeEvent(row.InfoDashboard); ok {
			events = append(events, ev)
		}
	}
	return events
}

// decodeEvent handles info_dashboard stored either as a JSON object or as
// a JSON string containing an object.
func decodeEvent(raw json.RawMessage) (Event, bool) {
	if len(raw) == 0 {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(raw, &ev); err == nil {
		return ev, true
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return Event{}, false
	}
	if err := json.Unmarshal([]byte(inner), &ev); err != nil {
		logging.Warn().Str("component", "store").Msg("unparseable info_dashboard payload")
		return Event{}, false
	}
	return ev, true
}
