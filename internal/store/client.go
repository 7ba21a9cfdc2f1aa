// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

// Package store talks to the Supabase PostgREST API that holds bot data.
//
// Client is a thin query builder over the REST endpoint with a circuit
// breaker and an outbound rate limit; Pool bounds the number of live
// clients per bot. Query methods in queries.go implement the dashboard's
// data access and degrade to empty results when the datastore fails, so
// a Supabase outage renders an empty dashboard rather than an error page.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/botboard/botboard/internal/logging"
)

const restPrefix = "/rest/v1/"

// ErrUnavailable wraps circuit-breaker rejections so callers can
// distinguish "datastore is down" from a query-level failure.
var ErrUnavailable = errors.New("datastore unavailable")

// ClientConfig configures a single PostgREST client.
type ClientConfig struct {
	// BaseURL is the Supabase project URL, without the /rest/v1 suffix.
	BaseURL string

	// APIKey is the service key sent as both apikey and Bearer token.
	APIKey string

	// Timeout bounds each HTTP request. Defaults to 15s.
	Timeout time.Duration

	// RequestsPerSecond throttles outbound requests. Defaults to 50.
	RequestsPerSecond float64
}

// Client issues requests against one Supabase project. Safe for
// concurrent use.
type Client struct {
	baseURL  string
	apiKey   string
	httpc    *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	throttle *rate.Limiter
}

// NewClient creates a client for the given project. The circuit breaker
// opens after five consecutive failures and probes again after 30 seconds.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 50
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "supabase",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("component", "store").
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		httpc:    &http.Client{Timeout: timeout},
		breaker:  breaker,
		throttle: rate.NewLimiter(rate.Limit(rps), int(rps)),
	}
}

// Table starts a query against the named table.
func (c *Client) Table(name string) *Query {
	return &Query{client: c, table: name}
}

// Ping issues a minimal read to verify the datastore is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var rows []map[string]any
	return c.Table("sales_users").Select("telegram_id").Limit(1).Execute(ctx, &rows)
}

// Query accumulates PostgREST parameters. Builder methods return the
// receiver, so calls chain; a Query is single-use and not safe for
// concurrent mutation.
type Query struct {
	client  *Client
	table   string
	selects []string
	filters url.Values
	order   string
	limit   int
}

// Select names the columns to return. Omitting it selects every column.
func (q *Query) Select(cols ...string) *Query {
	q.selects = append(q.selects, cols...)
	return q
}

func (q *Query) addFilter(col, op, value string) *Query {
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(col, op+"."+value)
	return q
}

// Eq filters col = value.
func (q *Query) Eq(col string, value any) *Query {
	return q.addFilter(col, "eq", fmt.Sprint(value))
}

// Neq filters col != value.
func (q *Query) Neq(col string, value any) *Query {
	return q.addFilter(col, "neq", fmt.Sprint(value))
}

// Gte filters col >= value.
func (q *Query) Gte(col string, value any) *Query {
	return q.addFilter(col, "gte", fmt.Sprint(value))
}

// NotLike filters col NOT LIKE pattern. PostgREST uses * as the wildcard;
// SQL-style % patterns are translated.
func (q *Query) NotLike(col, pattern string) *Query {
	return q.addFilter(col, "not.like", strings.ReplaceAll(pattern, "%", "*"))
}

// NotNull filters col IS NOT NULL.
func (q *Query) NotNull(col string) *Query {
	return q.addFilter(col, "not.is", "null")
}

// In filters col to the given set. An empty set matches nothing, which
// PostgREST expresses as in.().
func (q *Query) In(col string, values []string) *Query {
	return q.addFilter(col, "in", "("+strings.Join(values, ",")+")")
}

// InInt64 is In for numeric id sets.
func (q *Query) InInt64(col string, values []int64) *Query {
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = strconv.FormatInt(v, 10)
	}
	return q.In(col, strs)
}

// OrderDesc sorts by col descending.
func (q *Query) OrderDesc(col string) *Query {
	q.order = col + ".desc"
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) encode() string {
	params := url.Values{}
	if len(q.selects) > 0 {
		params.Set("select", strings.Join(q.selects, ","))
	}
	for col, vals := range q.filters {
		for _, v := range vals {
			params.Add(col, v)
		}
	}
	if q.order != "" {
		params.Set("order", q.order)
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}
	return params.Encode()
}

// Execute runs the query as a GET and unmarshals the JSON array into dest.
func (q *Query) Execute(ctx context.Context, dest any) error {
	body, err := q.client.do(ctx, http.MethodGet, q.path(), nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s response: %w", q.table, err)
	}
	return nil
}

// Insert adds a row.
func (q *Query) Insert(ctx context.Context, row any) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode %s row: %w", q.table, err)
	}
	_, err = q.client.do(ctx, http.MethodPost, q.path(), payload, "")
	return err
}

// Update patches rows matching the accumulated filters.
func (q *Query) Update(ctx context.Context, changes any) error {
	payload, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode %s changes: %w", q.table, err)
	}
	_, err = q.client.do(ctx, http.MethodPatch, q.path(), payload, "")
	return err
}

func (q *Query) path() string {
	p := restPrefix + url.PathEscape(q.table)
	if qs := q.encode(); qs != "" {
		p += "?" + qs
	}
	return p
}

// do performs one HTTP exchange through the throttle and breaker.
func (c *Client) do(ctx context.Context, method, path string, body []byte, prefer string) ([]byte, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}

	result, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if prefer != "" {
			req.Header.Set("Prefer", prefer)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, &APIError{Status: resp.StatusCode, Body: truncate(string(respBody), 500)}
		}
		return respBody, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return result, nil
}

// APIError is a non-2xx PostgREST response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase: status %d: %s", e.Status, e.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
