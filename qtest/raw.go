// =============================================================================
// raw.go - Raw Passthrough
// =============================================================================
//
// "qtest raw" bypasses the engine: it prints every chunk QEMU sends exactly
// as received (split wherever the socket read returned) and forwards each
// stdin line verbatim. It is the tool for looking at the wire when the
// typed client misbehaves.
//
//	$ qtest raw
//	Waiting for QEMU: -qtest unix:/tmp/qtest-4242.sock
//	Connected
//	clock_step
//	<- "OK 1000000\n"
//	exit
//
// =============================================================================

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/qtest/qtest-go/internal/config"
	"github.com/qtest/qtest-go/qtestprotocol"
)

var (
	// errPeerClosed ends the passthrough when QEMU closes the connection.
	errPeerClosed = errors.New("connection closed by QEMU")

	// errRawQuit ends the passthrough when the user types "exit".
	errRawQuit = errors.New("exit requested")
)

func newRawCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "raw",
		Short: "Print raw chunks from QEMU and forward stdin lines verbatim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			t, chunks, cleanup, err := openRawTransport(ctx, cfg, cc, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Fprintln(cmd.OutOrStdout(), "Connected")
			return runRaw(ctx, t, chunks, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// openRawTransport binds the configured listener and waits for QEMU. The
// returned cleanup closes the transport, stops a launched QEMU and releases
// the socket lock.
func openRawTransport(ctx context.Context, cfg *config.Config, cc *commandContext, status io.Writer) (qtestprotocol.Transport, <-chan []byte, func(), error) {
	factory, err := transportFactory(cfg.Transport.Kind)
	if err != nil {
		return nil, nil, nil, err
	}

	// Reuse the session type for its teardown order; only the transport
	// is used directly.
	s := &session{logger: cc.logger}
	if cfg.Transport.Kind == config.TransportUnix {
		if s.lock, err = acquireSocketLock(cfg.Transport.Address); err != nil {
			return nil, nil, nil, err
		}
	}

	chunks := make(chan []byte, qtestprotocol.ChannelCapacity)
	t, err := factory(cfg.Transport.Address, chunks, cc.logger)
	if err != nil {
		s.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := t.Close(); err != nil {
			cc.logger.Warn("close transport", "error", err)
		}
		s.Close()
	}

	if cc.launchQEMU() {
		args := qemuArgs(cfg.QEMU.Args, cfg.Transport.Kind, t.Address())
		if s.qemu, err = startQEMU(ctx, cfg.QEMU.Binary, args, os.Stderr); err != nil {
			cleanup()
			return nil, nil, nil, err
		}
	} else {
		fmt.Fprintf(status, "Waiting for QEMU: -qtest %s\n", qtestChardev(cfg.Transport.Kind, t.Address()))
	}

	if err := t.AttachConnection(ctx); err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return t, chunks, cleanup, nil
}

// runRaw pumps chunks to out and lines from in to t until QEMU disconnects,
// the user types "exit", in is exhausted or ctx is cancelled. The first two
// are normal exits and return nil.
//
// GO CONCEPT: errgroup
// --------------------
// errgroup.WithContext runs goroutines that share a context: the first one
// to return an error cancels the context for the others, and Wait returns
// that first error. It is sync.WaitGroup plus error propagation.
//
// Compare with Python: asyncio.TaskGroup cancels sibling tasks when one
// fails, the same shape.
func runRaw(ctx context.Context, t qtestprotocol.Transport, chunks <-chan []byte, in io.Reader, out io.Writer) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case chunk, ok := <-chunks:
				if !ok {
					fmt.Fprintln(out, "Connection closed by QEMU")
					return errPeerClosed
				}
				fmt.Fprintf(out, "<- %q\n", chunk)
			case <-gctx.Done():
				return nil
			}
		}
	})

	// Reading stdin can't be interrupted, so the scanner runs outside the
	// group and hands lines over a channel.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-gctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return errRawQuit
				}
				if strings.TrimSpace(line) == "exit" {
					return errRawQuit
				}
				if _, err := t.Send(line + qtestprotocol.LineTerminator); err != nil {
					return err
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, errPeerClosed) || errors.Is(err, errRawQuit) {
		return nil
	}
	return err
}
