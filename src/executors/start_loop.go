// Package executors runs the scheduled expiry sweep.
package executors

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"tagexceptions/src/lifecycle"
)

// Sweeper expires due exceptions.
type Sweeper interface {
	Sweep(ctx context.Context) (lifecycle.SweepResult, error)
}

// StartLoop sweeps once immediately and then every period until ctx is done.
// A failed sweep is logged and retried on the next tick.
func StartLoop(ctx context.Context, sweeper Sweeper, period time.Duration) error {
	if period <= 0 {
		return errors.New("sweep period must be positive")
	}

	ticker := time.NewTicker(period) // Set up a ticker that fires periodically
	defer ticker.Stop()

	runSweep(ctx, sweeper)

	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep loop stopped")
			return nil

		case <-ticker.C:
			logger.Debug("sweep loop tick")
			runSweep(ctx, sweeper)
		}
	}
}

func runSweep(ctx context.Context, sweeper Sweeper) {
	start := time.Now()
	result, err := sweeper.Sweep(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to sweep expired exceptions")
		return
	}

	entry := logger.WithFields(logger.Fields{
		"expired":               result.Expired,
		"notification_failures": result.NotificationFailures,
		"elapsed":               time.Since(start).String(),
	})
	if result.PartialFailure {
		entry.Warn("Sweep completed with notification failures")
		return
	}
	entry.Info("Sweep completed")
}
