// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package chat

import (
	"context"
	"time"

	"github.com/missionhq/missionboard/internal/logging"
)

// Sweeper periodically evicts expired identity-cache entries. It runs as a
// supervised service: Serve blocks until the context is canceled, so the
// sweep stops with the rest of the messaging layer on shutdown.
type Sweeper struct {
	cache    *IdentityCache
	interval time.Duration
}

// NewSweeper creates a sweeper over the given cache. The interval is fixed
// and independent of any single connection's activity.
func NewSweeper(cache *IdentityCache, interval time.Duration) *Sweeper {
	return &Sweeper{cache: cache, interval: interval}
}

// Serve implements suture.Service.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "identity-cache-sweeper").Msg("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if evicted := s.cache.EvictExpired(); evicted > 0 {
				logging.Debug().Int("evicted", evicted).Msg("identity cache sweep")
			}
		}
	}
}

// String names the service in supervisor logs.
func (s *Sweeper) String() string { return "identity-cache-sweeper" }
