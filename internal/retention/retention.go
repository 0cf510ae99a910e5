// Package retention prunes messages past the configured age on a cron
// schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"originchats/pkg/config"
	"originchats/pkg/logger"
	"originchats/pkg/store"
)

// Start launches the retention scheduler if enabled. Returns a cancel
// func; callers must invoke it on shutdown.
func Start(ctx context.Context, cfg config.RetentionConfig, st *store.Store) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}
	period := time.Duration(cfg.Period)
	if period <= 0 {
		return nil, fmt.Errorf("retention period must be positive, got %s", period)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", period)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, period, st)
	return cancel, nil
}

// runScheduler sleeps until the next cron tick and runs one prune pass.
func runScheduler(ctx context.Context, cronExpr string, period time.Duration, st *store.Store) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}

		if err := RunOnce(st, period); err != nil {
			logger.Error("retention_run_error", "error", err)
		}
	}
}

// RunOnce prunes every channel's messages older than the period, counting
// removals per channel.
func RunOnce(st *store.Store, period time.Duration) error {
	cutoff := time.Now().UTC().Add(-period)
	channels, err := st.ListChannels()
	if err != nil {
		return err
	}
	total := 0
	for _, ch := range channels {
		n, err := st.PurgeOlderThan(ch.Name, cutoff)
		if err != nil {
			logger.Error("retention_purge_failed", "channel", ch.Name, "error", err)
			continue
		}
		if n > 0 {
			logger.Info("retention_purged", "channel", ch.Name, "removed", n)
		}
		total += n
	}
	logger.Info("retention_run_complete", "removed", total)
	return nil
}
