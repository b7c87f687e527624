package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"tagexceptions/src/app"
	"tagexceptions/src/executors"
)

type Executor struct {
	Config *Config
}

func (t *Executor) Start() error {
	if t.Config == nil {
		t.Config = GetConfig()
	}
	loopConfig := executors.GetConfig()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	a, err := app.Build()
	if err != nil {
		logrus.WithError(err).Error("Failed to build exception manager")
		return err
	}
	defer a.Close()

	if t.Config.Once {
		result, err := a.Manager.Sweep(ctx)
		if err != nil {
			logrus.WithError(err).Error("Failed to sweep expired exceptions")
			return err
		}
		logrus.WithFields(logrus.Fields{
			"expired":               result.Expired,
			"notification_failures": result.NotificationFailures,
		}).Info("Sweep completed")
		return nil
	}

	logrus.WithField("period", loopConfig.SweepPeriod.String()).Info("Starting expiry sweeper")
	if err := executors.StartLoop(ctx, a.Manager, loopConfig.SweepPeriod); err != nil {
		logrus.WithError(err).Error("Failed to start sweep loop")
		return err
	}

	return nil
}
