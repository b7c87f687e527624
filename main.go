package main

import (
	"fmt"
	"os"
	"time"

	logger "github.com/sirupsen/logrus"

	"tagexceptions/src/app"
	"tagexceptions/src/logging"
	"tagexceptions/src/server"
)

var APP_NAME = os.Getenv("APP_NAME")

func main() {
	logging.Setup(logging.GetConfig())
	defer handlePanic()

	// Opens main and read-only databases and applies migrations
	a, err := app.Build()
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer a.Close()

	server.StartServer(server.GetConfig().Port, server.NewRouter(a.Routes()))
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
