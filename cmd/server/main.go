// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

// Command server runs the Botboard HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/botboard/botboard/internal/api"
	"github.com/botboard/botboard/internal/cache"
	"github.com/botboard/botboard/internal/config"
	"github.com/botboard/botboard/internal/logging"
	"github.com/botboard/botboard/internal/metrics"
	"github.com/botboard/botboard/internal/ratelimit"
	"github.com/botboard/botboard/internal/store"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("configuration failed")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr).
		Str("environment", cfg.Server.Environment).
		Str("version", api.Version).
		Msg("starting botboard")

	responseCache := cache.New(cfg.Cache.DefaultTTL, cfg.Cache.Enabled)
	defer responseCache.Close()

	limiter := ratelimit.New(cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour, cfg.RateLimit.MaxTrackedIPs)

	pool := store.NewPool(store.ClientConfig{
		BaseURL: cfg.Supabase.URL,
		APIKey:  cfg.Supabase.Key,
	}, cfg.Pool.MaxClients)
	defer pool.Close()

	st := store.New(pool)
	m := metrics.New()
	server := api.NewServer(cfg, st, responseCache, limiter, m)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// The timeout middleware bounds handler time; these bound slow
		// clients at the socket level.
		ReadTimeout:  cfg.Server.RequestTimeout + 5*time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		logging.Info().Msg("shutdown complete")
	}
}
