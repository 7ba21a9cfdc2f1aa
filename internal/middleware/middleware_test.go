// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/botboard/botboard/internal/logging"
)

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	var ctxID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = logging.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	headerID := rec.Header().Get("X-Request-ID")
	if headerID == "" {
		t.Fatal("expected generated X-Request-ID header")
	}
	if ctxID != headerID {
		t.Errorf("context id %q != header id %q", ctxID, headerID)
	}
}

func TestRequestIDPropagatesUpstreamID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "upstream-123" {
		t.Errorf("X-Request-ID = %q, want upstream-123", got)
	}
}

func TestRequestLoggingSetsProcessTime(t *testing.T) {
	handler := RequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bots/1", nil))

	pt := rec.Header().Get("X-Process-Time")
	if pt == "" {
		t.Fatal("expected X-Process-Time header")
	}
	if _, err := strconv.ParseFloat(pt, 64); err != nil {
		t.Errorf("X-Process-Time %q is not a float: %v", pt, err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 passed through", rec.Code)
	}
}

func TestRequestLoggingParsesUserCookie(t *testing.T) {
	var userID int64
	var found bool
	handler := RequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, found = logging.UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/bots/42", nil)
	req.AddCookie(&http.Cookie{Name: "telegram_id", Value: "42"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !found || userID != 42 {
		t.Errorf("user id from context = (%d, %v), want (42, true)", userID, found)
	}
}

func TestRequestLoggingRepanics(t *testing.T) {
	handler := RequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	defer func() {
		if recover() == nil {
			t.Error("expected panic to propagate")
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for name, value := range want {
		if got := rec.Header().Get(name); got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
}

func TestSecurityHeadersDoNotOverride(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q, want handler's SAMEORIGIN kept", got)
	}
}

func TestCacheHeaders(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		status  int
		wantCC  string
		wantSet bool
	}{
		{"analytics", http.MethodGet, "/api/analytics/demo/dashboard", 200, "public, max-age=30, must-revalidate", true},
		{"bot info", http.MethodGet, "/api/bots/demo/info", 200, "public, max-age=3600, must-revalidate", true},
		{"bot list", http.MethodGet, "/api/bots/42", 200, "public, max-age=300, must-revalidate", true},
		{"auth excluded", http.MethodGet, "/api/auth/user/42", 200, "", false},
		{"health excluded", http.MethodGet, "/health", 200, "", false},
		{"post excluded", http.MethodPost, "/api/bots/42", 200, "", false},
		{"error excluded", http.MethodGet, "/api/bots/42", 403, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CacheHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("{}"))
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			cc := rec.Header().Get("Cache-Control")
			if tt.wantSet {
				if cc != tt.wantCC {
					t.Errorf("Cache-Control = %q, want %q", cc, tt.wantCC)
				}
				if vary := rec.Header().Get("Vary"); vary != "Accept-Encoding" {
					t.Errorf("Vary = %q, want Accept-Encoding", vary)
				}
			} else if cc != "" {
				t.Errorf("Cache-Control = %q, want unset", cc)
			}
		})
	}
}

func TestETagRoundTrip(t *testing.T) {
	handler := ETag(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bots/42", nil))

	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `"`) || len(etag) != 34 {
		t.Fatalf("ETag = %q, want quoted md5 hex", etag)
	}
	if rec.Body.String() != `{"success":true}` {
		t.Errorf("body = %q", rec.Body.String())
	}

	// Revalidation with the same tag gets a 304 without a body.
	req := httptest.NewRequest(http.MethodGet, "/api/bots/42", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("304 body = %q, want empty", rec.Body.String())
	}
	if rec.Header().Get("ETag") != etag {
		t.Errorf("304 ETag = %q, want %q", rec.Header().Get("ETag"), etag)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	body := strings.Repeat(`{"success":true}`, 64)
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/bots/42", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	decoded, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(decoded) != body {
		t.Errorf("decompressed body does not match original")
	}
}

func TestCompressionSkipsNonAcceptingClients(t *testing.T) {
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("Content-Encoding") != "" {
		t.Errorf("Content-Encoding = %q, want none", rec.Header().Get("Content-Encoding"))
	}
	if rec.Body.String() != "plain" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestCompressionLeavesBodylessResponsesAlone(t *testing.T) {
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/bots/42", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("304 body = %q, want empty", rec.Body.String())
	}
	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("304 carries Content-Encoding")
	}
}

func TestETagAcceptsUnquotedTag(t *testing.T) {
	handler := ETag(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bots/42", nil))
	etag := rec.Header().Get("ETag")

	req := httptest.NewRequest(http.MethodGet, "/api/bots/42", nil)
	req.Header.Set("If-None-Match", strings.Trim(etag, `"`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotModified {
		t.Errorf("unquoted tag: status = %d, want 304", rec.Code)
	}
}

func TestRevalidationKeepsCacheDirective(t *testing.T) {
	handler := CacheHeaders(ETag(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bots/demo/info", nil))
	etag := rec.Header().Get("ETag")
	directive := rec.Header().Get("Cache-Control")
	if directive == "" {
		t.Fatal("200 response missing Cache-Control")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/bots/demo/info", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != directive {
		t.Errorf("304 Cache-Control = %q, want %q", got, directive)
	}
}

func TestETagSkipsErrorsAndNonAPIPaths(t *testing.T) {
	handler := ETag(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "fail") {
			w.WriteHeader(http.StatusBadRequest)
		}
		w.Write([]byte("x"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fail", nil))
	if rec.Header().Get("ETag") != "" {
		t.Error("expected no ETag on error response")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 passed through", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("ETag") != "" {
		t.Error("expected no ETag outside /api/")
	}
}
