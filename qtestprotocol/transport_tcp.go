package qtestprotocol

import (
	"context"
	"log/slog"
	"net"
)

// TCPTransport listens on a TCP host:port for QEMU to connect
// (qemu -qtest tcp:host:port).
type TCPTransport struct {
	*stream
	listener *net.TCPListener
}

// NewTCPTransport binds a TCP listener on address. Received chunks are
// forwarded to out once a peer attaches.
func NewTCPTransport(address string, out chan<- []byte, logger *slog.Logger) (*TCPTransport, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, NewTransportError("bind", err)
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, NewTransportError("bind", err)
	}
	return &TCPTransport{
		stream:   newStream(listener, out, logger),
		listener: listener,
	}, nil
}

// AttachConnection blocks until QEMU connects.
func (t *TCPTransport) AttachConnection(ctx context.Context) error {
	return t.attach(ctx)
}

// Send writes data to QEMU.
func (t *TCPTransport) Send(data string) (int, error) {
	return t.send(data)
}

// Address returns the bound address as ip:port.
func (t *TCPTransport) Address() string {
	return t.listener.Addr().String()
}

// Close closes the listener and the connection.
func (t *TCPTransport) Close() error {
	return t.close()
}
