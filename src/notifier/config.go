package notifier

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	WebhookURL    string        `envconfig:"NOTIFY_WEBHOOK_URL"` // empty means log-only notifications
	WebhookSecret string        `envconfig:"NOTIFY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
	RetryCount    int           `envconfig:"NOTIFY_RETRY_COUNT" default:"3"`
	RetryWait     time.Duration `envconfig:"NOTIFY_RETRY_WAIT" default:"500ms"`
	RetryMaxWait  time.Duration `envconfig:"NOTIFY_RETRY_MAX_WAIT" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
