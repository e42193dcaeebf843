package config

import (
	"fmt"
	"os"
	"strings"
)

// Normalize trims values, applies environment fallbacks and fills in
// defaults. The CLI calls it again after applying flag overrides.
func (c *Config) Normalize() error {
	if err := c.normalizeTransport(); err != nil {
		return err
	}
	c.normalizeLogging()
	if err := c.normalizeREPL(); err != nil {
		return err
	}
	c.normalizeQEMU()
	return nil
}

func (c *Config) normalizeTransport() error {
	c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	if c.Transport.Kind == "" {
		c.Transport.Kind = defaultTransportKind
	}

	c.Transport.Address = strings.TrimSpace(c.Transport.Address)
	if c.Transport.Address == "" {
		if value, ok := os.LookupEnv("QTEST_ADDRESS"); ok {
			c.Transport.Address = strings.TrimSpace(value)
		}
	}
	if c.Transport.Address == "" {
		c.Transport.Address = DefaultAddress(c.Transport.Kind)
	}
	if c.Transport.Kind == TransportUnix {
		var err error
		if c.Transport.Address, err = expandPath(c.Transport.Address); err != nil {
			return fmt.Errorf("transport.address: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeREPL() error {
	var err error
	if c.REPL.HistoryFile, err = expandPath(strings.TrimSpace(c.REPL.HistoryFile)); err != nil {
		return fmt.Errorf("repl.history_file: %w", err)
	}
	if c.REPL.HistoryLimit <= 0 {
		c.REPL.HistoryLimit = defaultHistoryLimit
	}
	return nil
}

func (c *Config) normalizeQEMU() {
	c.QEMU.Binary = strings.TrimSpace(c.QEMU.Binary)
	if c.QEMU.Binary == "" {
		c.QEMU.Binary = defaultQEMUBinary
	}
}
