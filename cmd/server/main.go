// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

// Command server runs the missionboard HTTP and websocket server under a
// suture supervision tree.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/missionhq/missionboard/internal/api"
	"github.com/missionhq/missionboard/internal/auth"
	"github.com/missionhq/missionboard/internal/chat"
	"github.com/missionhq/missionboard/internal/config"
	"github.com/missionhq/missionboard/internal/eventbus"
	"github.com/missionhq/missionboard/internal/lastvisit"
	"github.com/missionhq/missionboard/internal/logging"
	"github.com/missionhq/missionboard/internal/missions"
	"github.com/missionhq/missionboard/internal/store"
	"github.com/missionhq/missionboard/internal/supervisor"
	"github.com/missionhq/missionboard/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: cfg.Logging.Timestamp,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("db_path", cfg.Database.Path).
		Msg("Starting missionboard")

	db, err := store.OpenSQLite(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	// Domain services share one event bus. All subscriptions happen before
	// Freeze; publishing starts only once the bus is frozen.
	bus := eventbus.New()
	visits := lastvisit.NewService(db.LastVisits())
	missionSvc := missions.NewService(db.Missions(), db.Chat(), visits, bus)

	hub := websocket.NewHub()
	chatManager := chat.NewManager(db.Users(), missionSvc, db.Chat(), bus, hub, chat.Config{
		IdentityTTL:       cfg.Chat.IdentityTTL,
		SweepInterval:     cfg.Chat.SweepInterval,
		MessagesPerSecond: cfg.Chat.MessagesPerSecond,
		MessageBurst:      cfg.Chat.MessageBurst,
	})

	visits.Register(bus)
	missionSvc.Register(bus)
	bus.Freeze()

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	handler := api.NewHandler(db.Users(), missionSvc, chatManager, hub, jwtManager)
	router := api.NewRouter(handler, auth.NewMiddleware(jwtManager), cfg)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddMessagingService(hub)
	tree.AddMessagingService(chatManager.Sweeper())
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}
