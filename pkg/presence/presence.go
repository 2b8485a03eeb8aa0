// Package presence ages user statuses on a cron schedule: online users
// go away after a quiet period, away users go offline. Connect and
// disconnect flip status immediately at the gateway; the sweeper only
// handles decay.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatsync/pkg/config"
	"chatsync/pkg/logger"
	"chatsync/pkg/membership"
	"chatsync/pkg/models"
)

// Start launches the sweep scheduler. Returns a cancel func; a no-op
// cancel when the sweeper is disabled.
func Start(ctx context.Context, cfg config.PresenceConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("presence_sweeper_disabled")
		return func() {}, nil
	}
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "* * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("presence_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid presence cron expression: %s", cronExpr)
	}

	logger.Info("presence_sweeper_enabled", "cron", cronExpr,
		"away_after", time.Duration(cfg.AwayAfter).String(),
		"offline_after", time.Duration(cfg.OfflineAfter).String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, cronExpr)
	return cancel, nil
}

func runScheduler(ctx context.Context, cfg config.PresenceConfig, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("presence_sweeper_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("presence_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := SweepOnce(cfg); err != nil {
				logger.Error("presence_sweep_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("presence_sweeper_stopping")
			return
		}
	}
}

// SweepOnce applies the decay rules to every profile. Exposed so tests
// and admin triggers can run a sweep on demand.
func SweepOnce(cfg config.PresenceConfig) error {
	users, err := membership.ListUsers()
	if err != nil {
		return err
	}
	now := time.Now().UTC().UnixNano()
	away := int64(time.Duration(cfg.AwayAfter))
	offline := int64(time.Duration(cfg.OfflineAfter))
	var changed int
	for _, u := range users {
		idle := now - u.LastActive
		var target string
		switch {
		case u.Status == models.StatusOnline && offline > 0 && idle >= offline:
			target = models.StatusOffline
		case u.Status == models.StatusOnline && away > 0 && idle >= away:
			target = models.StatusAway
		case u.Status == models.StatusAway && offline > 0 && idle >= offline:
			target = models.StatusOffline
		default:
			continue
		}
		if _, err := membership.SetPresence(u.ID, target); err != nil {
			logger.Warn("presence_transition_failed", "user", u.ID, "status", target, "error", err)
			continue
		}
		changed++
	}
	if changed > 0 {
		logger.Info("presence_sweep_done", "transitions", changed)
	}
	return nil
}
