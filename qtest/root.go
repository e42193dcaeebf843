// =============================================================================
// root.go - Command Tree and Shared Settings
// =============================================================================
//
// The CLI is built with cobra. Every subcommand shares the same settings:
// a TOML config file (internal/config) overlaid with command-line flags.
// Running "qtest" with no subcommand starts the REPL.
//
// =============================================================================

package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/qtest/qtest-go/internal/config"
	"github.com/qtest/qtest-go/internal/logging"
	"github.com/qtest/qtest-go/qtestprotocol"
)

// flagValues holds the raw persistent flag values. Empty strings mean
// "use the config file value".
type flagValues struct {
	config    string
	transport string
	address   string
	logLevel  string
	logFormat string
	qemu      string
	qemuArgs  []string
}

// commandContext lazily loads the settings shared by all subcommands.
type commandContext struct {
	flags *flagValues

	once   sync.Once
	config *config.Config
	logger *slog.Logger
	err    error
}

func newCommandContext(flags *flagValues) *commandContext {
	return &commandContext{flags: flags}
}

// ensureConfig loads the config file, applies flag overrides and builds the
// logger. It runs at most once.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.err = err
			return
		}

		applyFlagOverrides(cfg, c.flags)
		if err := cfg.Normalize(); err != nil {
			c.err = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.err = err
			return
		}

		logger, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
		if err != nil {
			c.err = err
			return
		}

		c.config = cfg
		c.logger = logger
	})
	return c.config, c.err
}

// applyFlagOverrides copies explicitly set flags over config values.
func applyFlagOverrides(cfg *config.Config, flags *flagValues) {
	if v := strings.TrimSpace(flags.transport); v != "" {
		if v != cfg.Transport.Kind && strings.TrimSpace(flags.address) == "" {
			// The configured address belongs to the other transport kind.
			cfg.Transport.Address = ""
		}
		cfg.Transport.Kind = v
	}
	if v := strings.TrimSpace(flags.address); v != "" {
		cfg.Transport.Address = v
	}
	if v := strings.TrimSpace(flags.logLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(flags.logFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := strings.TrimSpace(flags.qemu); v != "" {
		cfg.QEMU.Binary = v
	}
	if len(flags.qemuArgs) > 0 {
		cfg.QEMU.Args = append([]string(nil), flags.qemuArgs...)
	}
}

// launchQEMU reports whether the CLI should start QEMU itself: either
// --qemu was given or the config file lists QEMU arguments.
func (c *commandContext) launchQEMU() bool {
	if strings.TrimSpace(c.flags.qemu) != "" {
		return true
	}
	return c.config != nil && len(c.config.QEMU.Args) > 0
}

// transportFactory maps the configured kind to a qtestprotocol factory.
func transportFactory(kind string) (qtestprotocol.TransportFactory, error) {
	switch kind {
	case config.TransportUnix:
		return qtestprotocol.Unix, nil
	case config.TransportTCP:
		return qtestprotocol.TCP, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

func newRootCommand() *cobra.Command {
	flags := &flagValues{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "qtest",
		Short:         "Drive a QEMU machine over the qtest protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPLCommand(cmd, ctx)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	pf.StringVar(&flags.transport, "transport", "", "Listener kind: unix or tcp")
	pf.StringVar(&flags.address, "address", "", "Socket path (unix) or host:port (tcp) to listen on")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text, json or auto")
	pf.StringVar(&flags.qemu, "qemu", "", "Launch this QEMU binary pointed at the listener")
	pf.StringArrayVar(&flags.qemuArgs, "qemu-arg", nil, "Extra argument passed to QEMU (repeatable)")

	rootCmd.AddCommand(newREPLCommand(ctx))
	rootCmd.AddCommand(newRawCommand(ctx))
	rootCmd.AddCommand(newToggleCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newREPLCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive qtest shell (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPLCommand(cmd, ctx)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), fullTitle())
			return nil
		},
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
