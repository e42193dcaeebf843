package qtestprotocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockDevice plays the QEMU side of a qtest connection: it dials the
// listener and answers each request line with whatever handler returns.
type mockDevice struct {
	conn    net.Conn
	handler func(line string) string

	mu    sync.Mutex
	lines []string
	wg    sync.WaitGroup
}

// dialMockDevice connects to a listening transport. The connection is closed
// when the test finishes.
func dialMockDevice(t *testing.T, network, address string, handler func(line string) string) *mockDevice {
	t.Helper()

	conn, err := net.DialTimeout(network, address, time.Second)
	if err != nil {
		t.Fatalf("mock device dial %s %s: %v", network, address, err)
	}

	md := &mockDevice{conn: conn, handler: handler}
	md.wg.Add(1)
	go md.serve()

	t.Cleanup(md.close)
	return md
}

func (md *mockDevice) serve() {
	defer md.wg.Done()

	scanner := bufio.NewScanner(md.conn)
	for scanner.Scan() {
		line := scanner.Text()
		md.mu.Lock()
		md.lines = append(md.lines, line)
		md.mu.Unlock()

		if md.handler != nil {
			fmt.Fprint(md.conn, md.handler(line))
		}
	}
}

// send writes unsolicited text, such as an IRQ line.
func (md *mockDevice) send(text string) {
	fmt.Fprint(md.conn, text)
}

func (md *mockDevice) received() []string {
	md.mu.Lock()
	defer md.mu.Unlock()
	return append([]string(nil), md.lines...)
}

func (md *mockDevice) close() {
	md.conn.Close()
	md.wg.Wait()
}

// shortSocketPath returns a socket path short enough for sun_path limits.
// t.TempDir() can exceed them on some systems.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "qtest-test-")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "q.sock")
}

// recvChunk waits for the next chunk on out.
func recvChunk(t *testing.T, out <-chan []byte) ([]byte, bool) {
	t.Helper()
	select {
	case chunk, ok := <-out:
		return chunk, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk")
		return nil, false
	}
}

func TestTCPTransportRoundTrip(t *testing.T) {
	out := make(chan []byte, ChannelCapacity)
	tr, err := NewTCPTransport("127.0.0.1:0", out, nil)
	if err != nil {
		t.Fatalf("NewTCPTransport: %v", err)
	}
	defer tr.Close()

	if strings.HasSuffix(tr.Address(), ":0") {
		t.Errorf("Address() = %q, want the bound port", tr.Address())
	}

	if _, err := tr.Send("clock_step\n"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send before attach = %v, want ErrNotConnected", err)
	}

	md := dialMockDevice(t, "tcp", tr.Address(), func(line string) string {
		return "OK 0x1\n"
	})

	if err := tr.AttachConnection(context.Background()); err != nil {
		t.Fatalf("AttachConnection: %v", err)
	}
	if err := tr.AttachConnection(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second AttachConnection = %v, want ErrAlreadyConnected", err)
	}

	n, err := tr.Send("readb 0x0\n")
	if err != nil || n != len("readb 0x0\n") {
		t.Fatalf("Send = %d, %v", n, err)
	}

	var got []byte
	for !strings.Contains(string(got), "\n") {
		chunk, ok := recvChunk(t, out)
		if !ok {
			t.Fatal("chunk channel closed early")
		}
		got = append(got, chunk...)
	}
	if string(got) != "OK 0x1\n" {
		t.Errorf("received %q", got)
	}
	if lines := md.received(); len(lines) != 1 || lines[0] != "readb 0x0" {
		t.Errorf("device received %q", lines)
	}

	// Peer close ends forwarding and closes the chunk channel.
	md.close()
	for {
		if _, ok := recvChunk(t, out); !ok {
			break
		}
	}
	if err := tr.Err(); err != nil {
		t.Errorf("Err() after clean close = %v", err)
	}
}

func TestTCPTransportBindFailure(t *testing.T) {
	out := make(chan []byte, ChannelCapacity)
	first, err := NewTCPTransport("127.0.0.1:0", out, nil)
	if err != nil {
		t.Fatalf("NewTCPTransport: %v", err)
	}
	defer first.Close()

	_, err = NewTCPTransport(first.Address(), make(chan []byte, 1), nil)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "bind" {
		t.Errorf("got %v, want bind TransportError", err)
	}
}

func TestUnixTransportRemovesStalePath(t *testing.T) {
	path := shortSocketPath(t)
	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	out := make(chan []byte, ChannelCapacity)
	tr, err := NewUnixTransport(path, out, nil)
	if err != nil {
		t.Fatalf("NewUnixTransport over stale path: %v", err)
	}
	defer tr.Close()

	if tr.Address() != path {
		t.Errorf("Address() = %q, want %q", tr.Address(), path)
	}

	dialMockDevice(t, "unix", path, nil)
	if err := tr.AttachConnection(context.Background()); err != nil {
		t.Fatalf("AttachConnection: %v", err)
	}
}

func TestUnixTransportGivesUpWhenStalePathCannotBeRemoved(t *testing.T) {
	path := shortSocketPath(t)
	if err := os.MkdirAll(filepath.Join(path, "keep"), 0o700); err != nil {
		t.Fatalf("create directory at socket path: %v", err)
	}

	tr, err := NewUnixTransport(path, make(chan []byte, 1), nil)
	if err == nil {
		tr.Close()
		t.Fatal("NewUnixTransport succeeded over a non-empty directory")
	}

	var te *TransportError
	if !errors.As(err, &te) || te.Op != "remove stale socket" {
		t.Fatalf("got %v, want remove stale socket TransportError", err)
	}
	if info, statErr := os.Stat(path); statErr != nil || !info.IsDir() {
		t.Errorf("directory at socket path was disturbed: %v", statErr)
	}
}

func TestUnixTransportCloseRemovesPath(t *testing.T) {
	path := shortSocketPath(t)
	tr, err := NewUnixTransport(path, make(chan []byte, 1), nil)
	if err != nil {
		t.Fatalf("NewUnixTransport: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("socket path still present after Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestAttachConnectionCancelled(t *testing.T) {
	out := make(chan []byte, 1)
	tr, err := NewUnixTransport(shortSocketPath(t), out, nil)
	if err != nil {
		t.Fatalf("NewUnixTransport: %v", err)
	}
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := tr.AttachConnection(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}

	// The listener is still usable after a cancelled attach.
	dialMockDevice(t, "unix", tr.Address(), nil)
	if err := tr.AttachConnection(context.Background()); err != nil {
		t.Fatalf("AttachConnection after cancel: %v", err)
	}
}

func TestCloseWithoutPeerClosesChunks(t *testing.T) {
	out := make(chan []byte, 1)
	tr, err := NewTCPTransport("127.0.0.1:0", out, nil)
	if err != nil {
		t.Fatalf("NewTCPTransport: %v", err)
	}
	tr.Close()

	if _, ok := recvChunk(t, out); ok {
		t.Error("chunk channel should be closed")
	}
}

// TestEngineOverUnixSocket drives the engine end to end over a real socket.
func TestEngineOverUnixSocket(t *testing.T) {
	path := shortSocketPath(t)
	e, err := NewEngine(Unix, path)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if _, err := e.ReadB(context.Background(), 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ReadB before attach = %v, want ErrNotConnected", err)
	}

	md := dialMockDevice(t, "unix", path, func(line string) string {
		switch {
		case strings.HasPrefix(line, "readl"):
			return "OK 0x2a\n"
		case strings.HasPrefix(line, "clock_set"):
			return "OK 42\n"
		default:
			return "OK\n"
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.AttachConnection(ctx); err != nil {
		t.Fatalf("AttachConnection: %v", err)
	}

	v, err := e.ReadL(ctx, 0x40020010)
	if err != nil || v != 42 {
		t.Fatalf("ReadL = %d, %v", v, err)
	}
	clock, err := e.ClockSet(ctx, 42)
	if err != nil || clock != 42 {
		t.Fatalf("ClockSet = %d, %v", clock, err)
	}

	md.send("IRQ raise 4\n")
	select {
	case irq := <-e.IRQs():
		if irq != NewIRQEvent(4, IRQRaise) {
			t.Errorf("irq = %v", irq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for irq")
	}

	md.close()
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop after peer close")
	}
	if _, err := e.ReadL(ctx, 0); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("ReadL after disconnect = %v, want ErrChannelClosed", err)
	}
}
