package app

import (
	"fmt"

	"github.com/vk/calcgrid/internal/config"
)

// Config holds the command-line settings of an App. Empty fields leave the
// value from the config file, or its default, in place.
type Config struct {
	ConfigPath string // optional HCL file

	LogFormat       string
	LogLevel        string
	StoreDriver     string
	StorePath       string
	Address         string
	HealthcheckPort int
	RedisURL        string
}

// NewConfig validates the command-line settings.
func NewConfig(cfg Config) (*Config, error) {
	if err := validate(cfg.LogLevel, cfg.LogFormat, cfg.StoreDriver); err != nil {
		return nil, err
	}
	if cfg.HealthcheckPort < 0 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}

// apply overlays the command-line settings on the loaded model and validates
// the result.
func (c *Config) apply(m *config.Model) error {
	setString(&m.Logging.Level, c.LogLevel)
	setString(&m.Logging.Format, c.LogFormat)
	setString(&m.Store.Driver, c.StoreDriver)
	setString(&m.Store.Path, c.StorePath)
	setString(&m.Server.Address, c.Address)
	if c.HealthcheckPort > 0 {
		m.Server.HealthcheckPort = c.HealthcheckPort
	}
	if c.RedisURL != "" {
		if m.Redis == nil {
			m.Redis = &config.Redis{}
		}
		m.Redis.URL = c.RedisURL
	}

	if err := validate(m.Logging.Level, m.Logging.Format, m.Store.Driver); err != nil {
		return err
	}
	if m.Store.Driver == config.StoreSQLite && m.Store.Path == "" {
		return fmt.Errorf("store driver %q needs a path", config.StoreSQLite)
	}
	return nil
}

func validate(level, format, driver string) error {
	switch level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", level)
	}
	switch format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be 'text' or 'json'", format)
	}
	switch driver {
	case "", config.StoreMemory, config.StoreSQLite:
	default:
		return fmt.Errorf("invalid store driver %q: must be %q or %q", driver, config.StoreMemory, config.StoreSQLite)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
