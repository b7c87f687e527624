// Package app assembles the exception manager from environment config.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tagexceptions/src/database"
	"tagexceptions/src/dispatcher"
	"tagexceptions/src/lifecycle"
	"tagexceptions/src/metrics"
	"tagexceptions/src/notifier"
	"tagexceptions/src/remediation"
	"tagexceptions/src/repository"
	"tagexceptions/src/server"
)

type App struct {
	MainDB     *gorm.DB
	ReadOnlyDB *gorm.DB
	Registry   *prometheus.Registry
	Manager    *lifecycle.Manager
	Dispatcher *dispatcher.Dispatcher
}

// Build opens the databases, running pending migrations, and wires every
// component from the environment.
func Build() (*App, error) {
	return BuildWith(database.GetConfig(), lifecycle.GetConfig(), notifier.GetConfig(), remediation.GetConfig())
}

func BuildWith(
	dbConfig database.Config,
	lifecycleConfig lifecycle.Config,
	notifierConfig notifier.Config,
	remediationConfig remediation.Config,
) (*App, error) {
	mainDB, err := database.OpenMain(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("open main database: %w", err)
	}
	readDB, err := database.OpenReadOnly(dbConfig, mainDB)
	if err != nil {
		closeDB(mainDB)
		return nil, fmt.Errorf("open read-only database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := repository.NewTaggingExceptionRepository(mainDB, readDB)
	manager := lifecycle.NewManager(
		lifecycleConfig,
		store,
		notifier.New(notifierConfig),
		remediation.New(remediationConfig),
	).WithMetrics(metrics.NewRecorder(registry))

	return &App{
		MainDB:     mainDB,
		ReadOnlyDB: readDB,
		Registry:   registry,
		Manager:    manager,
		Dispatcher: dispatcher.New(manager, repository.NewSystemErrorRepository(mainDB)),
	}, nil
}

// Routes exposes the app over HTTP.
func (a *App) Routes() server.Routes {
	return server.Routes{
		Dispatcher: a.Dispatcher,
		History:    a.Manager,
		Gatherer:   a.Registry,
	}
}

func (a *App) Close() {
	if a.ReadOnlyDB != a.MainDB {
		closeDB(a.ReadOnlyDB)
	}
	closeDB(a.MainDB)
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close database")
	}
}
