// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package store

import (
	"sync"

	"github.com/botboard/botboard/internal/logging"
)

// Pool caches one Client per bot up to a fixed capacity. When full, the
// oldest-inserted client is evicted regardless of how recently it was
// used; clients are cheap to rebuild, so insertion-order eviction keeps
// the bookkeeping to a slice.
type Pool struct {
	mu       sync.Mutex
	cfg      ClientConfig
	capacity int
	clients  map[string]*Client
	order    []string
	closed   bool
}

// PoolStats is a snapshot for the health endpoint.
type PoolStats struct {
	ActiveClients int      `json:"active_clients"`
	MaxClients    int      `json:"max_clients"`
	BotIDs        []string `json:"bot_ids"`
}

// NewPool creates a pool holding at most capacity clients built from cfg.
func NewPool(cfg ClientConfig, capacity int) *Pool {
	if capacity <= 0 {
		capacity = 10
	}
	return &Pool{
		cfg:      cfg,
		capacity: capacity,
		clients:  make(map[string]*Client),
	}
}

// GetOrCreate returns the client for botID, creating it on first use.
// The empty botID keys the unscoped client used for auth queries.
func (p *Pool) GetOrCreate(botID string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[botID]; ok {
		return c
	}

	if len(p.clients) >= p.capacity {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.clients, oldest)
		logging.Debug().
			Str("component", "store").
			Str("evicted_bot_id", oldest).
			Msg("pool at capacity, evicted oldest client")
	}

	c := NewClient(p.cfg)
	p.clients[botID] = c
	p.order = append(p.order, botID)
	return c
}

// Stats reports the current pool occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, len(p.order))
	copy(ids, p.order)
	return PoolStats{
		ActiveClients: len(p.clients),
		MaxClients:    p.capacity,
		BotIDs:        ids,
	}
}

// Close drops every client. Clients hold no connections beyond the shared
// http.Client's idle pool, so Close is bookkeeping for shutdown logs.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	n := len(p.clients)
	p.clients = make(map[string]*Client)
	p.order = nil

	logging.Info().
		Str("component", "store").
		Int("clients", n).
		Msg("client pool closed")
}
