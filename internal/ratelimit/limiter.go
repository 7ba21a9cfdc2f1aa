// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

// Package ratelimit implements a per-client-IP fixed-window rate limiter
// with bounded memory.
//
// Every client IP is tracked against two independent fixed windows, a
// 60-second window and a 3600-second window; counters reset at aligned
// window boundaries rather than on a rolling interval. The tracked set is
// capped: past the cap the least-recently-touched IP is evicted, and a
// periodic sweep drops entries whose windows have gone stale.
package ratelimit

import (
	"container/list"
	"sync"
	"time"
)

const (
	minuteWindow = 60
	hourWindow   = 3600

	// sweepInterval bounds how often the stale-entry sweep may run.
	sweepInterval = 60 * time.Second
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// RetryAfter is the number of seconds until the stricter exceeded
	// window rolls over. Zero when Allowed.
	RetryAfter int

	// Remaining is the number of requests left in the current minute
	// window, for the X-RateLimit-Remaining header. Never negative.
	Remaining int

	// Limit echoes the per-minute ceiling, for the X-RateLimit-Limit header.
	Limit int
}

// window is one fixed-window counter: the count observed inside the window
// identified by id (floor(now / window length)).
type window struct {
	count int
	id    int64
}

// entry is the per-IP record. Entries live both in the lookup map and on
// the access-order list used for LRU eviction.
type entry struct {
	ip     string
	minute window
	hour   window
}

// Limiter is a thread-safe fixed-window rate limiter over client IPs.
// The zero value is not usable; construct with New.
type Limiter struct {
	mu sync.Mutex

	perMinute     int
	perHour       int
	maxTrackedIPs int

	// entries maps IPs to elements of order; order front is the most
	// recently touched entry, back is the LRU eviction candidate.
	entries map[string]*list.Element
	order   *list.List

	lastSweep time.Time

	// now is injectable for tests.
	now func() time.Time
}

// New creates a limiter enforcing perMinute and perHour ceilings per IP,
// tracking at most maxTrackedIPs distinct clients. Limits must be
// positive; config validation rejects anything else before construction,
// so New does not re-check.
func New(perMinute, perHour, maxTrackedIPs int) *Limiter {
	return &Limiter{
		perMinute:     perMinute,
		perHour:       perHour,
		maxTrackedIPs: maxTrackedIPs,
		entries:       make(map[string]*list.Element),
		order:         list.New(),
		now:           time.Now,
	}
}

// Check decides whether a request from ip may proceed, and if so counts it
// against both windows. On rejection neither counter is incremented; the
// decision carries the seconds until the stricter exceeded window rolls
// over (the hour window takes precedence when both are exceeded).
func (l *Limiter) Check(ip string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweep(now)

	e := l.touch(ip, now)

	nowUnix := now.Unix()
	currentMinute := nowUnix / minuteWindow
	currentHour := nowUnix / hourWindow

	// Reset counters the instant the clock enters a newer window.
	if e.minute.id < currentMinute {
		e.minute = window{id: currentMinute}
	}
	if e.hour.id < currentHour {
		e.hour = window{id: currentHour}
	}

	// Rejections always report zero remaining quota, whichever window
	// tripped.
	if e.hour.count >= l.perHour {
		return Decision{
			RetryAfter: int(hourWindow - nowUnix%hourWindow),
			Limit:      l.perMinute,
		}
	}
	if e.minute.count >= l.perMinute {
		return Decision{
			RetryAfter: int(minuteWindow - nowUnix%minuteWindow),
			Limit:      l.perMinute,
		}
	}

	e.minute.count++
	e.hour.count++

	return Decision{
		Allowed:   true,
		Remaining: remaining(l.perMinute, e.minute.count),
		Limit:     l.perMinute,
	}
}

// Reset reports the Unix timestamp at which the current minute window rolls
// over, for the X-RateLimit-Reset header.
func (l *Limiter) Reset() int64 {
	now := l.now().Unix()
	return now + (minuteWindow - now%minuteWindow)
}

// TrackedIPs returns the number of distinct IPs currently tracked.
func (l *Limiter) TrackedIPs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// touch returns the entry for ip, promoting it to most-recently-used, and
// creates it (evicting the LRU entry past the cap) when absent.
// Must be called with l.mu held.
func (l *Limiter) touch(ip string, now time.Time) *entry {
	if elem, ok := l.entries[ip]; ok {
		l.order.MoveToFront(elem)
		return elem.Value.(*entry)
	}

	nowUnix := now.Unix()
	e := &entry{
		ip:     ip,
		minute: window{id: nowUnix / minuteWindow},
		hour:   window{id: nowUnix / hourWindow},
	}
	l.entries[ip] = l.order.PushFront(e)

	for len(l.entries) > l.maxTrackedIPs {
		oldest := l.order.Back()
		if oldest == nil {
			break
		}
		l.order.Remove(oldest)
		delete(l.entries, oldest.Value.(*entry).ip)
	}

	return e
}

// maybeSweep removes entries whose both windows are more than one window
// length in the past, at most once per sweepInterval. This bounds memory
// under bursty-then-idle traffic independently of the LRU cap.
// Must be called with l.mu held.
func (l *Limiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now

	currentMinute := now.Unix() / minuteWindow
	currentHour := now.Unix() / hourWindow

	for elem := l.order.Back(); elem != nil; {
		prev := elem.Prev()
		e := elem.Value.(*entry)
		if e.minute.id < currentMinute-1 && e.hour.id < currentHour-1 {
			l.order.Remove(elem)
			delete(l.entries, e.ip)
		}
		elem = prev
	}
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}
