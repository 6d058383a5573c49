package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/adapters/httpapi"
	"github.com/pagebound/readingroom/internal/adapters/ws"
	"github.com/pagebound/readingroom/internal/app"
	"github.com/pagebound/readingroom/internal/broker"
	"github.com/pagebound/readingroom/internal/config"
	"github.com/pagebound/readingroom/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}

	var reg store.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable")
			os.Exit(1)
		}
		// Value TTL is a backstop past the sweeper's grace window.
		reg = store.NewRedisStore(client, cfg.EvictionGrace+cfg.HeartbeatPeriod)
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis membership store")
	} else {
		reg = store.NewMemoryStore()
		log.Info().Msg("using in-memory membership store")
	}

	hub := broker.NewHub()
	var bus store.Publisher = hub
	var bridge *broker.Bridge
	if cfg.NatsURL != "" {
		bridge, err = broker.NewBridge(cfg.NatsURL, hub)
		if err != nil {
			log.Error().Err(err).Str("url", cfg.NatsURL).Msg("nats bridge failed")
			os.Exit(1)
		}
		bus = bridge
		defer bridge.Close()
	}

	actions := app.NewActions(reg, bus)

	sweeper := store.NewSweeper(reg, bus, cfg.SweepInterval, cfg.EvictionGrace)
	go sweeper.Run(ctx)

	wsCtl := ws.NewController(hub, cfg.ReadLimit)
	r := httpapi.SetupRouter(ctx, cfg, actions, wsCtl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("reading room server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
