// =============================================================================
// lineeditor.go - Line Editing with ergochat/readline
// =============================================================================
//
// Provides a LineEditor that wraps ergochat/readline for interactive
// terminal sessions. It supports Emacs-style keybindings (Ctrl-A/E/K/W/Y,
// arrow keys, Ctrl-R history search) and persists history to the file
// configured in [repl] history_file.
//
// When stdin is not a TTY (piped input, scripts, Emacs comint), the editor
// falls back to a plain bufio.Scanner so qtest can be driven from a file:
//
//	qtest < boot-check.qtest
//
// =============================================================================

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

// LineEditor wraps line editing with dual-mode operation.
//
// In interactive mode, it uses ergochat/readline for rich line editing.
// In non-interactive mode, it reads lines with bufio.Scanner and prints the
// prompt itself.
type LineEditor struct {
	// interactive is true when stdin is a TTY (terminal).
	interactive bool

	// rl is the readline instance used in interactive mode; nil otherwise.
	rl *readline.Instance

	// scanner reads lines in non-interactive mode; nil otherwise.
	scanner *bufio.Scanner

	// out receives prompts in non-interactive mode.
	out io.Writer
}

// NewLineEditor creates a new LineEditor with automatic mode detection.
//
// If stdin is a TTY, it creates a readline instance with persistent history
// at historyFile, keeping at most historyLimit entries. The INSIDE_EMACS
// environment variable forces non-interactive mode because Emacs provides
// its own line editing.
func NewLineEditor(historyFile string, historyLimit int) *LineEditor {
	// GO CONCEPT: TTY Detection
	// -------------------------
	// golang.org/x/term.IsTerminal() checks if a file descriptor is connected
	// to a terminal. os.Stdin.Fd() returns a uintptr, so it is converted to
	// int for IsTerminal.
	//
	// Compare with Python: `sys.stdin.isatty()` does the same check.
	isInteractive := term.IsTerminal(int(os.Stdin.Fd())) &&
		os.Getenv("INSIDE_EMACS") == ""

	if !isInteractive {
		return newScriptedLineEditor(os.Stdin, os.Stdout)
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:  historyFile,
		HistoryLimit: historyLimit,

		// Lines are saved manually so empty input never reaches history.
		DisableAutoSaveHistory: true,

		// The prompt is set before every read.
		Prompt: "",
	})
	if err != nil {
		// Fall back to basic input rather than refusing to start.
		fmt.Fprintf(os.Stderr, "Warning: readline init failed (%v), using basic input\n", err)
		return newScriptedLineEditor(os.Stdin, os.Stdout)
	}

	return &LineEditor{
		interactive: true,
		rl:          rl,
	}
}

// newScriptedLineEditor creates a non-interactive editor reading from in and
// writing prompts to out.
func newScriptedLineEditor(in io.Reader, out io.Writer) *LineEditor {
	return &LineEditor{
		interactive: false,
		scanner:     bufio.NewScanner(in),
		out:         out,
	}
}

// GetLine reads a line of input with the given prompt.
//
// Returns ("", io.EOF) when the user presses Ctrl-D or Ctrl-C, or when
// piped input is exhausted.
func (le *LineEditor) GetLine(prompt string) (string, error) {
	if le.interactive {
		return le.getInteractiveLine(prompt)
	}
	return le.getNonInteractiveLine(prompt)
}

func (le *LineEditor) getInteractiveLine(prompt string) (string, error) {
	le.rl.SetPrompt(prompt)

	line, err := le.rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt {
			return "", io.EOF
		}
		return "", err
	}

	if trimmed := strings.TrimSpace(line); trimmed != "" {
		le.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

func (le *LineEditor) getNonInteractiveLine(prompt string) (string, error) {
	fmt.Fprint(le.out, prompt)

	if !le.scanner.Scan() {
		if err := le.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return le.scanner.Text(), nil
}

// Stdout returns a writer for output that must not corrupt the line being
// edited, such as IRQ notifications printed while the user is typing.
func (le *LineEditor) Stdout() io.Writer {
	if le.rl != nil {
		// Instance.Write redraws the prompt and pending input after output.
		return le.rl
	}
	return le.out
}

// Close saves history and releases the terminal. It is safe to call more
// than once.
func (le *LineEditor) Close() {
	if le.rl != nil {
		le.rl.Close()
		le.rl = nil
	}
}

// IsInteractive reports whether full line editing is active.
func (le *LineEditor) IsInteractive() bool {
	return le.interactive
}
