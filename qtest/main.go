// =============================================================================
// main.go - qtest CLI Entry Point
// =============================================================================
//
// This is the entry point of the qtest command-line tool. The CLI listens on
// a Unix socket or TCP port, waits for QEMU (started with -qtest) to connect,
// and then drives the machine through the qtest protocol: stepping the
// virtual clock, reading and writing guest memory and I/O ports, and
// watching intercepted IRQ lines.
//
// Usage:
//
//	qtest                                 Listen on the default socket, run the REPL
//	qtest --qemu qemu-system-arm \
//	      --qemu-arg=-M --qemu-arg=netduino2   Launch QEMU pointed at the listener
//	qtest --transport tcp --address :3000 Listen on TCP instead
//	qtest raw                             Raw passthrough (prints every chunk)
//	qtest toggle --path /machine/soc ...  Toggle an input IRQ line
//
// =============================================================================

// GO CONCEPT: Packages
// --------------------
// The special package name "main" tells the Go compiler this is an
// executable program (not a library). A "main" package must contain a
// func main() as the entry point. All protocol logic lives in the
// qtestprotocol library; this package only wires it to a terminal.
//
// Compare with Python: Python uses `if __name__ == "__main__":` as the
// entry point. Any .py file can be both a script and a module.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// =============================================================================
// Version Information
// =============================================================================

const (
	// version is the current version of the CLI.
	version = "0.3.0"

	// appName is the application name.
	appName = "qtest"
)

// fullTitle returns the application title with version.
func fullTitle() string {
	return fmt.Sprintf("%s v%s", appName, version)
}

// welcomeBanner returns the text printed when the REPL starts.
func welcomeBanner(address string) string {
	return fmt.Sprintf(`%s - QEMU qtest client
Attached to QEMU via %s

Type '.help' for available commands.
Type '.quit' to exit.
`, fullTitle(), address)
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			printError(err.Error())
		}
		os.Exit(1)
	}
}

// printError prints an error message to stderr.
func printError(message string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}
