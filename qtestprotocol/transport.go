package qtestprotocol

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Transport is the byte-stream endpoint QEMU connects to.
//
// A Transport owns a listening endpoint and, once AttachConnection returns,
// one peer connection. Received bytes are forwarded as raw chunks to the
// channel given at construction; that channel is closed when the peer
// closes the connection or a read fails.
type Transport interface {
	// AttachConnection blocks until one peer connects, then starts
	// forwarding received bytes.
	AttachConnection(ctx context.Context) error

	// Send writes data to the peer and returns the number of bytes written.
	// It fails with ErrNotConnected before AttachConnection.
	Send(data string) (int, error)

	// Address returns the address the transport listens on.
	Address() string

	// Close releases the listener and the connection.
	Close() error
}

// TransportFactory creates a Transport bound to address that forwards
// received chunks to out.
type TransportFactory func(address string, out chan<- []byte, logger *slog.Logger) (Transport, error)

// TCP is the TransportFactory for TCP listeners bound to host:port.
func TCP(address string, out chan<- []byte, logger *slog.Logger) (Transport, error) {
	t, err := NewTCPTransport(address, out, logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Unix is the TransportFactory for Unix-domain listeners bound to a path.
func Unix(path string, out chan<- []byte, logger *slog.Logger) (Transport, error) {
	t, err := NewUnixTransport(path, out, logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// deadlineListener is a net.Listener whose Accept can be interrupted.
// Both *net.TCPListener and *net.UnixListener satisfy it.
type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// stream holds the state shared by the TCP and Unix transports: the
// listener, the write half of the attached connection and the forwarding
// goroutine that owns the read half.
type stream struct {
	listener deadlineListener
	out      chan<- []byte
	logger   *slog.Logger

	mu        sync.Mutex
	conn      net.Conn
	attaching bool
	closed    bool
	readErr   error
}

func newStream(listener deadlineListener, out chan<- []byte, logger *slog.Logger) *stream {
	if logger == nil {
		logger = discardLogger()
	}
	return &stream{
		listener: listener,
		out:      out,
		logger:   logger,
	}
}

// attach accepts one connection and starts the forwarding goroutine.
func (s *stream) attach(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil || s.attaching {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.attaching = true
	s.mu.Unlock()

	conn, err := s.accept(ctx)

	s.mu.Lock()
	s.attaching = false
	if err == nil && s.closed {
		conn.Close()
		err = NewTransportError("accept", net.ErrClosed)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("qtest peer attached", "local", s.listener.Addr().String())
	go s.forward(conn)
	return nil
}

// accept waits for a peer, giving up when ctx ends by expiring the
// listener's deadline.
func (s *stream) accept(ctx context.Context) (net.Conn, error) {
	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			_ = s.listener.SetDeadline(time.Unix(1, 0))
		case <-stop:
		}
	}()

	conn, err := s.listener.Accept()
	close(stop)
	<-exited
	_ = s.listener.SetDeadline(time.Time{})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, NewTransportError("accept", err)
	}
	return conn, nil
}

// forward reads fixed-size chunks from conn and sends a copy of each to
// out. It closes out when the peer closes the connection or a read fails.
func (s *stream) forward(conn net.Conn) {
	defer close(s.out)

	buf := make([]byte, ReadChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.out <- chunk
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			s.logger.Info("qtest connection closed by peer")
			return
		}
		if errors.Is(err, net.ErrClosed) {
			s.logger.Debug("qtest connection closed locally")
			return
		}
		s.logger.Error("qtest read error", "error", err)
		s.mu.Lock()
		s.readErr = NewTransportError("read", err)
		s.mu.Unlock()
		return
	}
}

// send writes data on the attached connection.
func (s *stream) send(data string) (int, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return 0, ErrNotConnected
	}
	n, err := io.WriteString(conn, data)
	if err != nil {
		return n, NewTransportError("send", err)
	}
	return n, nil
}

// close shuts the listener and the connection. If no peer ever attached,
// out is closed here so downstream readers still terminate.
func (s *stream) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	if conn == nil {
		close(s.out)
	}
	s.mu.Unlock()

	var errs []error
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, NewTransportError("close", err))
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, NewTransportError("close", err))
		}
	}
	return errors.Join(errs...)
}

// Err returns the read error that ended forwarding, if any.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
