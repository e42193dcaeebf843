package qtestprotocol

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// UnixTransport listens on a Unix-domain socket path for QEMU to connect
// (qemu -qtest unix:/path).
type UnixTransport struct {
	*stream
	path string
}

// NewUnixTransport binds a Unix-domain listener on path.
//
// If the bind fails because the path is already in use, the stale path is
// removed and the bind retried exactly once. Received chunks are forwarded
// to out once a peer attaches.
func NewUnixTransport(path string, out chan<- []byte, logger *slog.Logger) (*UnixTransport, error) {
	if logger == nil {
		logger = discardLogger()
	}

	listener, err := listenUnix(path)
	if err != nil && errors.Is(err, unix.EADDRINUSE) {
		logger.Warn("qtest socket path in use, removing stale path", "path", path)
		if rmErr := os.Remove(path); rmErr != nil {
			return nil, NewTransportError("remove stale socket", rmErr)
		}
		listener, err = listenUnix(path)
	}
	if err != nil {
		return nil, NewTransportError("bind", err)
	}

	return &UnixTransport{
		stream: newStream(listener, out, logger),
		path:   path,
	}, nil
}

func listenUnix(path string) (*net.UnixListener, error) {
	return net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
}

// AttachConnection blocks until QEMU connects.
func (t *UnixTransport) AttachConnection(ctx context.Context) error {
	return t.attach(ctx)
}

// Send writes data to QEMU.
func (t *UnixTransport) Send(data string) (int, error) {
	return t.send(data)
}

// Address returns the socket path.
func (t *UnixTransport) Address() string {
	return t.path
}

// Close closes the listener and the connection and removes the socket path.
func (t *UnixTransport) Close() error {
	err := t.close()
	if rmErr := os.Remove(t.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		err = errors.Join(err, NewTransportError("remove socket", rmErr))
	}
	return err
}
