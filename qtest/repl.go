// =============================================================================
// repl.go - Interactive qtest Shell
// =============================================================================
//
// The REPL reads one command per line, expands shorthand aliases, parses
// the result into a typed qtestprotocol.Command and executes it. IRQ
// notifications arrive asynchronously and are printed as they come in,
// independent of the command being typed.
//
// Lines starting with "." are handled locally and never reach QEMU.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qtest/qtest-go/qtestprotocol"
)

const replPrompt = "qtest> "

// runREPLCommand is the RunE of both the root command and "qtest repl".
func runREPLCommand(cmd *cobra.Command, cc *commandContext) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}

	// GO CONCEPT: signal.NotifyContext
	// --------------------------------
	// NotifyContext returns a context that is cancelled on the first
	// SIGINT/SIGTERM. Cancelling it aborts the wait for QEMU and any command
	// that is waiting for its response.
	//
	// Compare with Python: installing a SIGINT handler that raises
	// KeyboardInterrupt in the main thread.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg, cc.launchQEMU(), cc.logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer sess.Close()

	cc.logger.Info("qtest session attached",
		"session", sess.engine.Session().String(),
		"address", sess.engine.Address(),
	)

	editor := NewLineEditor(cfg.REPL.HistoryFile, cfg.REPL.HistoryLimit)
	defer editor.Close()

	fmt.Fprint(editor.Stdout(), welcomeBanner(sess.engine.Address()))
	return runREPL(ctx, sess.engine, editor, editor.Stdout(), cmd.ErrOrStderr())
}

// =============================================================================
// IRQ Log
// =============================================================================

// irqRecord is one IRQ notification with its arrival time.
type irqRecord struct {
	event    qtestprotocol.IRQEvent
	received time.Time
}

// irqLog collects IRQ notifications for the .irqs command. It is written
// by the IRQ printer goroutine and read by the REPL loop.
type irqLog struct {
	mu      sync.Mutex
	records []irqRecord
}

func (l *irqLog) add(ev qtestprotocol.IRQEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, irqRecord{event: ev, received: time.Now()})
}

func (l *irqLog) snapshot() []irqRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]irqRecord(nil), l.records...)
}

func (l *irqLog) clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.records)
	l.records = nil
	return n
}

// render returns the log as a table, or a short notice when it is empty.
func (l *irqLog) render() string {
	records := l.snapshot()
	if len(records) == 0 {
		return "No IRQs received."
	}
	rows := make([][]string, 0, len(records))
	for i, rec := range records {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatUint(uint64(rec.event.Line), 10),
			rec.event.State.String(),
			rec.received.Format("15:04:05.000"),
		})
	}
	return renderTable(
		[]string{"#", "Line", "State", "Received"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft},
	)
}

// lockedWriter serializes writes from the REPL loop and the IRQ printer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// =============================================================================
// REPL Loop
// =============================================================================

// repl holds the state of one interactive session.
type repl struct {
	engine *qtestprotocol.Engine
	parser *qtestprotocol.CommandParser
	editor *LineEditor
	out    io.Writer
	errOut io.Writer
	irqs   irqLog
}

// runREPL runs the read-execute-print loop until the input ends, the user
// types .quit, ctx is cancelled or the connection to QEMU is lost.
func runREPL(ctx context.Context, engine *qtestprotocol.Engine, editor *LineEditor, out, errOut io.Writer) error {
	r := &repl{
		engine: engine,
		parser: qtestprotocol.NewCommandParser(),
		editor: editor,
		out:    &lockedWriter{w: out},
		errOut: errOut,
	}

	// The printer exits once the engine closes its IRQ channel, which
	// happens when the connection ends.
	go r.printIRQs()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, err := editor.GetLine(replPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if quit := r.dotCommand(line); quit {
				return nil
			}
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			if qtestprotocol.IsClosed(err) {
				fmt.Fprintf(r.errOut, "Error: %v\n", err)
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(r.errOut, "Error: %v\n", err)
		}
	}
}

// printIRQs prints and records IRQ notifications until the engine closes
// the IRQ channel.
func (r *repl) printIRQs() {
	for ev := range r.engine.IRQs() {
		r.irqs.add(ev)
		fmt.Fprintln(r.out, ev.Format())
	}
}

// dotCommand handles a local command. It returns true when the REPL
// should exit.
func (r *repl) dotCommand(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	switch strings.ToLower(name) {
	case ".quit", ".exit":
		return true
	case ".help":
		printHelp(r.out, r.errOut, arg)
	case ".irqs":
		fmt.Fprintln(r.out, r.irqs.render())
	case ".clear":
		n := r.irqs.clear()
		fmt.Fprintf(r.out, "Cleared %d IRQ record(s)\n", n)
	default:
		fmt.Fprintf(r.errOut, "Error: Unknown command '%s'. Type .help to see available commands.\n", name)
	}
	return false
}

// execute parses line, sends it and prints the response.
func (r *repl) execute(ctx context.Context, line string) error {
	cmd, err := r.parser.Parse(expandAlias(line))
	if err != nil {
		return err
	}

	resp, err := r.engine.Exec(ctx, cmd)
	if err != nil {
		return err
	}

	text, err := formatResult(cmd, resp)
	if err != nil {
		return err
	}
	if text != "" {
		fmt.Fprintln(r.out, text)
	}
	return nil
}

// formatResult renders a response for display. Width-suffixed reads are
// decoded and shown zero-padded to their width; QEMU errors are returned
// as a RemoteError.
func formatResult(cmd qtestprotocol.Command, resp qtestprotocol.Response) (string, error) {
	if resp.IsError() {
		return "", &qtestprotocol.RemoteError{Message: resp.Payload}
	}

	switch cmd.Type {
	case qtestprotocol.CmdPortIn, qtestprotocol.CmdMemRead:
		val, err := qtestprotocol.DecodeUint(cmd, resp)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0x%0*x", cmd.Width.Bits()/4, val), nil
	}

	if payload, ok := resp.Value(); ok {
		return payload, nil
	}
	return resp.Format(), nil
}
