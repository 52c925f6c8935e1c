// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

// Package api provides HTTP routing using Chi router.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/missionhq/missionboard/internal/auth"
	"github.com/missionhq/missionboard/internal/config"
	"github.com/missionhq/missionboard/internal/middleware"
)

// Router wires the handler set into the HTTP route tree.
type Router struct {
	handler *Handler
	authMW  *auth.Middleware
	cfg     *config.Config
}

// NewRouter creates the route tree builder.
func NewRouter(handler *Handler, authMW *auth.Middleware, cfg *config.Config) *Router {
	return &Router{handler: handler, authMW: authMW, cfg: cfg}
}

// Setup builds the full route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health and metrics stay unauthenticated for probes and scrapers.
	r.Get("/api/v1/health", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Strict per-IP rate limit on credential endpoints.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.cfg.Security.LoginRateLimit, time.Minute))
		r.Post("/login", router.handler.Login)
		r.Post("/register", router.handler.Register)
	})

	// Everything below requires a valid bearer token.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(300, time.Minute))
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.authMW.Authenticate)

		r.Route("/missions", func(r chi.Router) {
			r.Get("/", router.handler.ListMissions)
			r.Post("/", router.handler.CreateMission)
			r.Get("/{missionID}", router.handler.GetMission)
			r.Patch("/{missionID}", router.handler.UpdateMission)
			r.Delete("/{missionID}", router.handler.DeleteMission)
		})

		r.Get("/ws", router.handler.WebSocket)
	})

	return r
}
