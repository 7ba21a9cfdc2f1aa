// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestAppearsInScrape(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/api/bots/{telegram_id}", 200, 50*time.Millisecond)
	m.RateLimitRejects.Inc()
	m.CacheSize.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`botboard_http_requests_total{method="GET",route="/api/bots/{telegram_id}",status="200"} 1`,
		"botboard_http_request_duration_seconds_bucket",
		"botboard_ratelimit_rejections_total 1",
		"botboard_cache_entries 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.RateLimitRejects.Inc()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if strings.Contains(rec.Body.String(), "botboard_ratelimit_rejections_total 1") {
		t.Error("collector state leaked between instances")
	}
}
