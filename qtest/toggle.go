// =============================================================================
// toggle.go - IRQ Toggle Exercise
// =============================================================================
//
// "qtest toggle" is a scripted smoke test for IRQ plumbing. It intercepts
// the input IRQs of one device, then drives a GPIO input line high and low
// a few times, printing every IRQ notification QEMU sends back:
//
//	qtest toggle --intercept /machine/soc \
//	             --path '/machine/soc/gpio[2]' --name input-in --line 13
//
// =============================================================================

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qtest/qtest-go/qtestprotocol"
)

// toggleOptions configures one toggle run.
type toggleOptions struct {
	intercept string
	path      string
	name      string
	line      uint
	count     int
	interval  time.Duration
}

func newToggleCommand(cc *commandContext) *cobra.Command {
	opts := toggleOptions{}

	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Intercept IRQs and toggle an input line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := openSession(ctx, cfg, cc.launchQEMU(), cc.logger, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sess.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "Device connected")
			return runToggle(ctx, sess.engine, opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.intercept, "intercept", "/machine/soc", "QOM path whose input IRQs are intercepted")
	flags.StringVar(&opts.path, "path", "/machine/soc/gpio[2]", "QOM path of the device whose input line is driven")
	flags.StringVar(&opts.name, "name", "input-in", "GPIO name of the input line")
	flags.UintVar(&opts.line, "line", 13, "Input line number")
	flags.IntVar(&opts.count, "count", 3, "Number of level changes (starting high)")
	flags.DurationVar(&opts.interval, "interval", time.Second, "Delay between level changes")

	return cmd
}

// runToggle intercepts IRQs on opts.intercept and then sets the input line
// to 1, 0, 1, ... opts.count times, opts.interval apart.
func runToggle(ctx context.Context, engine *qtestprotocol.Engine, opts toggleOptions, out io.Writer) error {
	out = &lockedWriter{w: out}

	go func() {
		for ev := range engine.IRQs() {
			fmt.Fprintf(out, "Received IRQ: %s\n", ev)
		}
	}()

	resp, err := engine.IRQInterceptIn(ctx, opts.intercept)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "irq_intercept_in %s: %s\n", opts.intercept, resp)
	if resp.IsError() {
		return &qtestprotocol.RemoteError{Message: resp.Payload}
	}

	for i := range opts.count {
		if i > 0 {
			select {
			case <-time.After(opts.interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		level := 1 - i%2
		resp, err := engine.SetIRQIn(ctx, opts.path, opts.name, opts.line, level)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "set_irq_in %s %s %d %d: %s\n", opts.path, opts.name, opts.line, level, resp)
	}
	return nil
}
