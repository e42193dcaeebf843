// =============================================================================
// testutil_test.go - Shared Test Helpers
// =============================================================================
//
// qemuStub plays the QEMU side of a qtest connection so the REPL, raw and
// toggle commands can be exercised end to end over a real Unix socket.
//
// =============================================================================

package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/qtest/qtest-go/qtestprotocol"
)

// qemuStub dials a listening qtest socket and answers every request line
// with whatever handler returns.
type qemuStub struct {
	conn    net.Conn
	handler func(line string) string

	mu    sync.Mutex
	lines []string
	wg    sync.WaitGroup
}

func dialQEMUStub(t *testing.T, path string, handler func(line string) string) *qemuStub {
	t.Helper()

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}

	return newQEMUStub(t, conn, handler)
}

// newQEMUStub serves an already established connection.
func newQEMUStub(t *testing.T, conn net.Conn, handler func(line string) string) *qemuStub {
	t.Helper()

	qs := &qemuStub{conn: conn, handler: handler}
	qs.wg.Add(1)
	go qs.serve()

	t.Cleanup(qs.close)
	return qs
}

func (qs *qemuStub) serve() {
	defer qs.wg.Done()

	scanner := bufio.NewScanner(qs.conn)
	for scanner.Scan() {
		line := scanner.Text()
		qs.mu.Lock()
		qs.lines = append(qs.lines, line)
		qs.mu.Unlock()

		if qs.handler != nil {
			fmt.Fprint(qs.conn, qs.handler(line))
		}
	}
}

// send writes unsolicited text, such as an IRQ notification.
func (qs *qemuStub) send(text string) {
	fmt.Fprint(qs.conn, text)
}

func (qs *qemuStub) received() []string {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return append([]string(nil), qs.lines...)
}

func (qs *qemuStub) close() {
	qs.conn.Close()
	qs.wg.Wait()
}

// shortSocketPath returns a socket path that fits in sun_path.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "qtest-cli-")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "q.sock")
}

// newAttachedEngine returns an engine attached to a qemuStub.
func newAttachedEngine(t *testing.T, handler func(line string) string) (*qtestprotocol.Engine, *qemuStub) {
	t.Helper()

	path := shortSocketPath(t)
	engine, err := qtestprotocol.NewEngine(qtestprotocol.Unix, path)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	stub := dialQEMUStub(t, path, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := engine.AttachConnection(ctx); err != nil {
		t.Fatalf("AttachConnection: %v", err)
	}
	return engine, stub
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// waitForOutput polls buf until it contains want.
func waitForOutput(t *testing.T, buf *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in output:\n%s", want, buf.String())
}

// waitForErr waits for a function running in the background to finish.
func waitForErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for return")
		return nil
	}
}
