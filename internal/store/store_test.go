// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package store

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fixedNow anchors query windows so fixture timestamps are stable.
var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, handler http.Handler) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	pool := NewPool(ClientConfig{BaseURL: srv.URL, APIKey: "test-key"}, 10)
	st := New(pool)
	st.now = func() time.Time { return fixedNow }
	return st
}

func TestValidateBotID(t *testing.T) {
	valid := []string{"demo", "my-bot_2", "A", strings.Repeat("a", 100)}
	for _, id := range valid {
		if err := ValidateBotID(id); err != nil {
			t.Errorf("ValidateBotID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{
		"",
		strings.Repeat("a", 101),
		"bot id",
		"bot/id",
		"bot.id",
		"___",
		"--",
		"_-_",
		"бот",
	}
	for _, id := range invalid {
		if err := ValidateBotID(id); err == nil {
			t.Errorf("ValidateBotID(%q) = nil, want error", id)
		}
	}
}

func TestClientSendsAuthHeaders(t *testing.T) {
	var gotAPIKey, gotAuth string
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, "[]")
	}))

	st.GetUserBots(context.Background(), 1)

	if gotAPIKey != "test-key" {
		t.Errorf("apikey header = %q, want test-key", gotAPIKey)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization header = %q, want Bearer test-key", gotAuth)
	}
}

func TestQueryEncoding(t *testing.T) {
	var gotURL string
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		fmt.Fprint(w, "[]")
	}))

	var rows []eventRow
	err := st.pool.GetOrCreate("demo").
		Table("scheduled_events").
		Select("info_dashboard").
		Eq("bot_id", "demo").
		NotNull("info_dashboard").
		OrderDesc("created_at").
		Limit(10).
		Execute(context.Background(), &rows)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !strings.HasPrefix(gotURL, "/rest/v1/scheduled_events?") {
		t.Errorf("path = %q, want /rest/v1/scheduled_events prefix", gotURL)
	}
	for _, want := range []string{
		"select=info_dashboard",
		"bot_id=eq.demo",
		"info_dashboard=not.is.null",
		"order=created_at.desc",
		"limit=10",
	} {
		if !strings.Contains(gotURL, want) {
			t.Errorf("url %q missing %q", gotURL, want)
		}
	}
}

func TestNotLikeTranslatesWildcard(t *testing.T) {
	var gotQuery string
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, "[]")
	}))

	var rows []userCreatedRow
	st.pool.GetOrCreate("demo").
		Table("sales_users").
		NotLike("first_name", "Test%").
		Execute(context.Background(), &rows)

	if !strings.Contains(gotQuery, "first_name=not.like.Test%2A") {
		t.Errorf("query %q: want %% translated to PostgREST * wildcard", gotQuery)
	}
}

func TestGetUserBotsDeduplicates(t *testing.T) {
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"bot_id":"beta"},{"bot_id":"alpha"},{"bot_id":"beta"},{"bot_id":""}]`)
	}))

	bots := st.GetUserBots(context.Background(), 42)
	if len(bots) != 2 || bots[0] != "alpha" || bots[1] != "beta" {
		t.Errorf("GetUserBots = %v, want [alpha beta]", bots)
	}
}

func TestGetUserBotsDegradesToEmpty(t *testing.T) {
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	}))

	bots := st.GetUserBots(context.Background(), 42)
	if bots == nil || len(bots) != 0 {
		t.Errorf("GetUserBots on error = %v, want empty non-nil slice", bots)
	}
}

func TestGetUserInfo(t *testing.T) {
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"telegram_id":42,"username":"alice","first_name":"Alice","is_active":true}]`)
	}))

	user, err := st.GetUserInfo(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetUserInfo: %v", err)
	}
	if user == nil || user.TelegramID != 42 || user.Username != "alice" || !user.IsActive {
		t.Errorf("GetUserInfo = %+v", user)
	}
}

func TestGetUserInfoMissing(t *testing.T) {
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))

	user, err := st.GetUserInfo(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetUserInfo: %v", err)
	}
	if user != nil {
		t.Errorf("GetUserInfo = %+v, want nil for missing user", user)
	}
}

func TestCreateOrUpdateUser(t *testing.T) {
	t.Run("new user inserted under system bot", func(t *testing.T) {
		var method, body string
		st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				fmt.Fprint(w, "[]")
				return
			}
			method = r.Method
			buf := make([]byte, r.ContentLength)
			r.Body.Read(buf)
			body = string(buf)
			w.WriteHeader(http.StatusCreated)
		}))

		err := st.CreateOrUpdateUser(context.Background(), UserInfo{TelegramID: 42, FirstName: "Alice"})
		if err != nil {
			t.Fatalf("CreateOrUpdateUser: %v", err)
		}
		if method != http.MethodPost {
			t.Errorf("method = %q, want POST for new user", method)
		}
		if !strings.Contains(body, `"bot_id":"system"`) {
			t.Errorf("insert body %q missing system bot_id", body)
		}
	})

	t.Run("existing user patched", func(t *testing.T) {
		var method, body string
		st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				fmt.Fprint(w, `[{"telegram_id":42,"first_name":"Old"}]`)
				return
			}
			method = r.Method
			buf := make([]byte, r.ContentLength)
			r.Body.Read(buf)
			body = string(buf)
			w.WriteHeader(http.StatusNoContent)
		}))

		err := st.CreateOrUpdateUser(context.Background(), UserInfo{TelegramID: 42, FirstName: "Alice"})
		if err != nil {
			t.Fatalf("CreateOrUpdateUser: %v", err)
		}
		if method != http.MethodPatch {
			t.Errorf("method = %q, want PATCH for existing user", method)
		}
		if !strings.Contains(body, `"is_active":true`) {
			t.Errorf("update body %q missing is_active", body)
		}
		if strings.Contains(body, `"bot_id"`) {
			t.Errorf("update body %q must not change bot_id", body)
		}
	})
}

// metricsHandler serves the three tables GetDashboardMetrics reads.
func metricsHandler(users, sessions, messages string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/rest/v1/sales_users"):
			fmt.Fprint(w, users)
		case strings.HasPrefix(r.URL.Path, "/rest/v1/sales_chat_sessions"):
			fmt.Fprint(w, sessions)
		case strings.HasPrefix(r.URL.Path, "/rest/v1/sales_messages"):
			fmt.Fprint(w, messages)
		default:
			http.NotFound(w, r)
		}
	})
}

func TestGetDashboardMetrics(t *testing.T) {
	// Two real users, one created inside the 7-day window. Two sessions,
	// one with user messages today.
	users := `[
		{"telegram_id":1,"created_at":"2025-06-14T10:00:00Z"},
		{"telegram_id":2,"created_at":"2025-01-01T10:00:00Z"}
	]`
	sessions := `[
		{"id":"s1","user_id":1,"current_stage":"interest","created_at":"2025-06-14T11:00:00Z"},
		{"id":"s2","user_id":2,"current_stage":"purchase","created_at":"2025-06-13T09:00:00Z"}
	]`
	messages := `[
		{"session_id":"s1"},
		{"session_id":"s1"}
	]`
	st := newTestStore(t, metricsHandler(users, sessions, messages))

	m := st.GetDashboardMetrics(context.Background(), "demo", 7)

	if m.TotalUsers != 2 {
		t.Errorf("TotalUsers = %d, want 2", m.TotalUsers)
	}
	if m.NewUsers != 1 {
		t.Errorf("NewUsers = %d, want 1", m.NewUsers)
	}
	if m.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", m.TotalSessions)
	}
	if m.ActiveToday != 1 {
		t.Errorf("ActiveToday = %d, want 1 unique session", m.ActiveToday)
	}
	if m.PeriodDays != 7 {
		t.Errorf("PeriodDays = %d, want 7", m.PeriodDays)
	}
	if m.TotalRevenue != 0 || m.ConversionRate != 0 || m.AverageCheck != 0 || m.LTV != 0 {
		t.Error("revenue metrics must be zero")
	}
}

func TestGetDashboardMetricsDegradesToZero(t *testing.T) {
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	m := st.GetDashboardMetrics(context.Background(), "demo", 30)
	if m != (DashboardMetrics{PeriodDays: 30}) {
		t.Errorf("degraded metrics = %+v, want zero values with period_days 30", m)
	}
}

func TestGetFunnelStats(t *testing.T) {
	sessions := `[
		{"id":"a","user_id":1,"current_stage":"introduction"},
		{"id":"b","user_id":2,"current_stage":"introduction"},
		{"id":"c","user_id":3,"current_stage":"interest"},
		{"id":"d","user_id":4,"current_stage":"purchase"}
	]`
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sessions)
	}))

	f := st.GetFunnelStats(context.Background(), "demo", 7)

	if f.TotalUsers != 4 {
		t.Errorf("TotalUsers = %d, want 4", f.TotalUsers)
	}
	if len(f.Steps) != 5 {
		t.Fatalf("Steps = %d, want 5 fixed stages", len(f.Steps))
	}
	wantStages := []string{"introduction", "interest", "consideration", "intent", "purchase"}
	for i, step := range f.Steps {
		if step.Stage != wantStages[i] {
			t.Errorf("step %d stage = %q, want %q", i, step.Stage, wantStages[i])
		}
	}
	if f.Steps[0].UsersCount != 2 || f.Steps[0].Percentage != 50.0 {
		t.Errorf("introduction = %+v, want 2 users at 50%%", f.Steps[0])
	}
	if f.Steps[2].UsersCount != 0 || f.Steps[2].Percentage != 0 {
		t.Errorf("consideration = %+v, want zeros", f.Steps[2])
	}
	if f.TotalConversion != 25.0 {
		t.Errorf("TotalConversion = %v, want last step's 25.0", f.TotalConversion)
	}
}

func TestGetFunnelStatsEmptyWindow(t *testing.T) {
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))

	f := st.GetFunnelStats(context.Background(), "demo", 7)
	if f.TotalUsers != 0 || f.TotalConversion != 0 {
		t.Errorf("empty funnel = %+v", f)
	}
	if len(f.Steps) != 5 {
		t.Errorf("Steps = %d, want fixed 5 even when empty", len(f.Steps))
	}
}

func TestGetFunnelStatsDegradesOnError(t *testing.T) {
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	f := st.GetFunnelStats(context.Background(), "demo", 7)
	if f.Steps == nil || len(f.Steps) != 0 {
		t.Errorf("degraded funnel steps = %v, want empty non-nil", f.Steps)
	}
}

func TestGetUserGrowth(t *testing.T) {
	users := `[
		{"telegram_id":1,"created_at":"2025-06-14T10:00:00Z"},
		{"telegram_id":2,"created_at":"2025-06-14T11:00:00Z"},
		{"telegram_id":3,"created_at":"2025-06-15T09:00:00Z"}
	]`
	sessions := `[
		{"user_id":1,"created_at":"2025-06-14T12:00:00Z"},
		{"user_id":1,"created_at":"2025-06-14T13:00:00Z"},
		{"user_id":99,"created_at":"2025-06-14T13:00:00Z"}
	]`
	st := newTestStore(t, metricsHandler(users, sessions, "[]"))

	points := st.GetUserGrowth(context.Background(), "demo", 3, 10)

	if len(points) != 3 {
		t.Fatalf("points = %d, want 3", len(points))
	}
	// Day 1 (2025-06-13): nothing. Day 2: two new users, one active (the
	// user with id 99 is not a real user). Day 3: one new user.
	if points[0].NewUsers != 0 || points[0].TotalUsers != 10 {
		t.Errorf("day 1 = %+v, want base total 10", points[0])
	}
	if points[1].NewUsers != 2 || points[1].TotalUsers != 12 || points[1].ActiveUsers != 1 {
		t.Errorf("day 2 = %+v, want 2 new, total 12, 1 active", points[1])
	}
	if points[2].NewUsers != 1 || points[2].TotalUsers != 13 {
		t.Errorf("day 3 = %+v, want 1 new, total 13", points[2])
	}
}

func TestGetUserGrowthDegradesToEmpty(t *testing.T) {
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	points := st.GetUserGrowth(context.Background(), "demo", 7, 0)
	if points == nil || len(points) != 0 {
		t.Errorf("degraded growth = %v, want empty non-nil slice", points)
	}
}

func TestGetRecentEvents(t *testing.T) {
	rows := `[
		{"info_dashboard":{"title":"Launch","description":"Go live","created_at":"2025-06-14T10:00:00Z"}},
		{"info_dashboard":"{\"title\":\"Promo\",\"description\":\"Discount\",\"created_at\":\"2025-06-13T10:00:00Z\"}"},
		{"info_dashboard":"not json"}
	]`
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rows)
	}))

	events := st.GetRecentEvents(context.Background(), "demo", 10)

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (malformed row skipped)", len(events))
	}
	if events[0].Title != "Launch" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Title != "Promo" {
		t.Errorf("event 1 (string payload) = %+v", events[1])
	}
}

func TestGetRecentEventsDegradesToEmpty(t *testing.T) {
	st := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	events := st.GetRecentEvents(context.Background(), "demo", 10)
	if events == nil || len(events) != 0 {
		t.Errorf("degraded events = %v, want empty non-nil slice", events)
	}
}

func TestPoolFIFOEviction(t *testing.T) {
	pool := NewPool(ClientConfig{BaseURL: "http://localhost", APIKey: "k"}, 2)

	a := pool.GetOrCreate("a")
	pool.GetOrCreate("b")
	// Re-using "a" must not change its eviction position.
	if pool.GetOrCreate("a") != a {
		t.Fatal("expected cached client for a")
	}

	pool.GetOrCreate("c")

	stats := pool.Stats()
	if stats.ActiveClients != 2 {
		t.Errorf("ActiveClients = %d, want 2", stats.ActiveClients)
	}
	// FIFO: "a" was inserted first, so "a" goes, even though it was the
	// most recently used.
	for _, id := range stats.BotIDs {
		if id == "a" {
			t.Error("expected oldest-inserted client a to be evicted")
		}
	}
	if pool.GetOrCreate("b") == nil {
		t.Error("expected b to survive")
	}
}

func TestPoolConcurrentFirstAccess(t *testing.T) {
	pool := NewPool(ClientConfig{BaseURL: "http://localhost", APIKey: "k"}, 5)

	const goroutines = 16
	clients := make([]*Client, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			clients[n] = pool.GetOrCreate("demo")
		}(i)
	}
	wg.Wait()

	// Racing first accesses must all resolve to one handle.
	for i := 1; i < goroutines; i++ {
		if clients[i] != clients[0] {
			t.Fatalf("goroutine %d got a different client handle", i)
		}
	}
	if stats := pool.Stats(); stats.ActiveClients != 1 {
		t.Errorf("ActiveClients = %d, want 1", stats.ActiveClients)
	}
}

func TestPoolStats(t *testing.T) {
	pool := NewPool(ClientConfig{BaseURL: "http://localhost", APIKey: "k"}, 5)
	pool.GetOrCreate("a")
	pool.GetOrCreate("b")

	stats := pool.Stats()
	if stats.ActiveClients != 2 || stats.MaxClients != 5 {
		t.Errorf("Stats = %+v", stats)
	}
	if len(stats.BotIDs) != 2 || stats.BotIDs[0] != "a" || stats.BotIDs[1] != "b" {
		t.Errorf("BotIDs = %v, want insertion order [a b]", stats.BotIDs)
	}
}
