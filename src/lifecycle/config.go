package lifecycle

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is injected into the Manager at construction.
type Config struct {
	DefaultTTL    time.Duration `envconfig:"EXCEPTION_DEFAULT_TTL" default:"168h"`
	MaxTTL        time.Duration `envconfig:"EXCEPTION_MAX_TTL" default:"2160h"`
	StoreTimeout  time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	WriteAttempts int           `envconfig:"STORE_WRITE_ATTEMPTS" default:"3"`
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:    7 * 24 * time.Hour,
		MaxTTL:        90 * 24 * time.Hour,
		StoreTimeout:  5 * time.Second,
		WriteAttempts: 3,
	}
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = d.DefaultTTL
	}
	if c.MaxTTL <= 0 {
		c.MaxTTL = d.MaxTTL
	}
	if c.MaxTTL < c.DefaultTTL {
		c.MaxTTL = c.DefaultTTL
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.WriteAttempts <= 0 {
		c.WriteAttempts = 1
	}
	return c
}
