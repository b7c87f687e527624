package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tagexceptions/cmd/executor"
	"tagexceptions/cmd/invoke"
	"tagexceptions/src/app"
	"tagexceptions/src/database"
	"tagexceptions/src/logging"
	"tagexceptions/src/server"
)

var Version string

func main() {
	logging.Setup(logging.GetConfig())

	cliApp := cli.NewApp()
	cliApp.Name = "Tagging exceptions CMD"
	cliApp.Usage = "Manage the lifecycle of tagging exceptions"
	cliApp.Version = Version

	cliApp.Commands = []cli.Command{
		serveCMD,
		sweeperCMD,
		sweepCMD,
		invokeCMD,
		migrateCMD,
	}

	if err := cliApp.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "run the HTTP API",
		Action:      serveAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Serve /invoke, /exceptions, /healthcheck and /metrics on PORT`,
	}
	sweeperCMD = cli.Command{
		Name:        "sweeper",
		Usage:       "run the expiry sweeper",
		Action:      sweeperAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Sweep expired exceptions every SWEEP_PERIOD until interrupted`,
	}
	sweepCMD = cli.Command{
		Name:        "sweep",
		Usage:       "run a single expiry sweep",
		Action:      sweepAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Expire every active exception that is due and exit`,
	}
	invokeCMD = cli.Command{
		Name:      "invoke",
		Usage:     "dispatch one invocation event",
		Action:    invokeAction,
		ArgsUsage: "[event.json]",
		Flags:     []cli.Flag{},
		Description: `Read an event such as {"action":"cleanup_expired"} from the given file,
   or from stdin when no file is given, and print the {statusCode, body} response`,
	}
	migrateCMD = cli.Command{
		Name:        "migrate",
		Usage:       "apply database migrations",
		Action:      migrateAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Create tables and indexes and run pending data migrations`,
	}
)

func serveAction(_ *cli.Context) error {
	logrus.Info("Starting serve CMD")

	a, err := app.Build()
	if err != nil {
		logrus.WithError(err).Error("Failed to build exception manager")
		return err
	}
	defer a.Close()

	server.StartServer(server.GetConfig().Port, server.NewRouter(a.Routes()))
	return nil
}

func sweeperAction(_ *cli.Context) error {
	logrus.Info("Starting sweeper CMD")

	return (&executor.Executor{}).Start()
}

func sweepAction(_ *cli.Context) error {
	logrus.Info("Starting sweep CMD")

	return (&executor.Executor{Config: &executor.Config{Once: true}}).Start()
}

func invokeAction(c *cli.Context) error {
	log := logrus.WithField("cmd", "invoke")

	var in io.Reader = os.Stdin
	if path := c.Args().First(); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open event file: %w", err)
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build()
	if err != nil {
		log.WithError(err).Error("Failed to build exception manager")
		return err
	}
	defer a.Close()

	inv := &invoke.Invoker{Log: log, In: in, Out: os.Stdout}
	return inv.Run(ctx, a.Dispatcher)
}

func migrateAction(_ *cli.Context) error {
	logrus.Info("Starting migrate CMD")

	db, err := database.OpenMain(database.GetConfig())
	if err != nil {
		logrus.WithError(err).Error("Failed to migrate database")
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logrus.Info("Migrations applied")
	return nil
}
