// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

type Config struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"` // "text" or "json"
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Setup applies config to the standard logger. An unparseable level falls
// back to debug.
func Setup(config Config) {
	level, err := logger.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		level = logger.DebugLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(config.Format, "json") {
		logger.SetFormatter(&logger.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}
