// =============================================================================
// qemu.go - QEMU Discovery and Launch
// =============================================================================
//
// The CLI can optionally start QEMU itself. It listens first, then launches
// QEMU with "-qtest <chardev>" appended so QEMU connects back to the
// listener. Without --qemu the user starts QEMU by hand with the address the
// CLI prints.
//
// The executable search order:
//   1. An absolute or relative path given by the user
//   2. Same directory as the CLI binary
//   3. PATH environment variable
//   4. Common locations: /usr/local/bin, /opt/homebrew/bin, ~/.local/bin
//
// A launched QEMU is terminated when the CLI exits.
//
// =============================================================================

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/qtest/qtest-go/internal/config"
)

const (
	// qemuStopTimeout is how long a launched QEMU gets to exit after SIGTERM
	// before it is killed.
	qemuStopTimeout = 3 * time.Second
)

// qtestChardev returns the -qtest argument that makes QEMU connect to the
// CLI's listener.
func qtestChardev(kind, address string) string {
	if kind == config.TransportTCP {
		return "tcp:" + address
	}
	return "unix:" + address
}

// qemuArgs builds the full QEMU argument list.
//
// GO CONCEPT: Slices Are Views
// ----------------------------
// append() may write into the backing array of its first argument when
// there is spare capacity. Copying user args into a fresh slice first means
// the caller's slice is never modified.
//
// Compare with Python: `args = list(user_args) + ["-qtest", chardev]`
// always builds a new list; Go needs the explicit copy.
func qemuArgs(userArgs []string, kind, address string) []string {
	args := make([]string, 0, len(userArgs)+2)
	args = append(args, userArgs...)
	return append(args, "-qtest", qtestChardev(kind, address))
}

// startQEMU launches QEMU as a subprocess. QEMU's output goes to stderr so
// it doesn't interleave with REPL output on stdout.
func startQEMU(ctx context.Context, binary string, args []string, stderr io.Writer) (*exec.Cmd, error) {
	exePath, err := findQEMUExecutable(binary)
	if err != nil {
		return nil, fmt.Errorf("could not find %s executable: %w", binary, err)
	}

	cmd := exec.CommandContext(ctx, exePath, args...)
	cmd.Stdout = stderr
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = qemuStopTimeout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", binary, err)
	}
	return cmd, nil
}

// stopQEMU asks a launched QEMU to exit and waits for it.
func stopQEMU(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(qemuStopTimeout):
		_ = cmd.Process.Kill()
		<-done
	}
}

// findQEMUExecutable searches for the QEMU binary in standard locations.
// Returns the full path to the executable.
func findQEMUExecutable(name string) (string, error) {
	// 1. Explicit path
	if strings.ContainsRune(name, filepath.Separator) {
		if isExecutable(name) {
			return name, nil
		}
		return "", fmt.Errorf("%s is not an executable file", name)
	}

	// 2. Check the same directory as the CLI binary
	if selfPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(selfPath), name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	// 3. Check PATH
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	// 4. Check common locations
	commonPaths := []string{
		"/usr/local/bin",
		"/opt/homebrew/bin",
		filepath.Join(homeDir(), ".local", "bin"),
	}
	for _, dir := range commonPaths {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// isExecutable checks if a file exists and is executable.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	// Check that it's a regular file with at least one execute bit set
	return !info.IsDir() && info.Mode().Perm()&0111 != 0
}

// homeDir returns the current user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}
