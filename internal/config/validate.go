package config

import (
	"errors"
	"fmt"

	"github.com/qtest/qtest-go/internal/logging"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTransport(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTransport() error {
	switch c.Transport.Kind {
	case TransportUnix, TransportTCP:
	default:
		return fmt.Errorf("transport.kind must be %q or %q, got %q", TransportUnix, TransportTCP, c.Transport.Kind)
	}
	if c.Transport.Address == "" {
		return errors.New("transport.address must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("logging.format must be text, json or auto, got %q", c.Logging.Format)
	}
	return nil
}
