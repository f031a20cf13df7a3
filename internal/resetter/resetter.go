package resetter

import (
	"context"
	"log/slog"
	"time"
)

// Refresher is the part of the mission service the worker drives
type Refresher interface {
	Refresh(ctx context.Context, playerID string) (bool, error)
	SubscribedPlayers() []string
}

// Resetter periodically rolls over missions for connected players, so
// their clients see the daily reset without having to ask for it.
type Resetter struct {
	missions Refresher
	interval time.Duration
}

// New creates a new reset worker
func New(missions Refresher, interval time.Duration) *Resetter {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Resetter{
		missions: missions,
		interval: interval,
	}
}

// Start begins the reset worker in a goroutine
func (r *Resetter) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Resetter) run(ctx context.Context) {
	slog.Info("reset worker started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run immediately on start
	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reset worker stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce checks every subscribed player and returns how many were reassigned
func (r *Resetter) RunOnce(ctx context.Context) int {
	players := r.missions.SubscribedPlayers()
	if len(players) == 0 {
		slog.Debug("no subscribed players to check")
		return 0
	}

	reassigned := 0
	for _, playerID := range players {
		if ctx.Err() != nil {
			break
		}

		ok, err := r.missions.Refresh(ctx, playerID)
		if err != nil {
			slog.Error("failed to refresh daily missions",
				"error", err,
				"player_id", playerID,
			)
			continue
		}
		if ok {
			reassigned++
		}
	}

	if reassigned > 0 {
		slog.Info("daily missions rolled over", "players", reassigned, "checked", len(players))
	}
	return reassigned
}
