package logging

import (
	"testing"

	logger "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetup(t *testing.T) {
	level, formatter := logger.GetLevel(), logger.StandardLogger().Formatter
	t.Cleanup(func() {
		logger.SetLevel(level)
		logger.SetFormatter(formatter)
	})

	Setup(Config{Level: "WARN", Format: "json"})
	assert.Equal(t, logger.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logger.JSONFormatter{}, logger.StandardLogger().Formatter)

	Setup(Config{Level: "loud", Format: "text"})
	assert.Equal(t, logger.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logger.TextFormatter{}, logger.StandardLogger().Formatter)
}
