package remediation

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	URL     string        `envconfig:"REMEDIATION_URL"` // empty means log-only
	Token   string        `envconfig:"REMEDIATION_TOKEN"`
	Timeout time.Duration `envconfig:"REMEDIATION_TIMEOUT" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
