package qtestprotocol

import (
	"fmt"
	"os"
	"path/filepath"
)

// Protocol constants.
const (
	// OKToken is the first token of every successful response.
	OKToken = "OK"

	// IRQToken is the first token of every asynchronous IRQ line.
	IRQToken = "IRQ"

	// IRQRaiseToken and IRQLowerToken name the two IRQ line states.
	IRQRaiseToken = "raise"
	IRQLowerToken = "lower"

	// LineTerminator ends every request and response line.
	LineTerminator = "\n"

	// ChannelCapacity is the capacity of every internal channel (raw chunks,
	// IRQ events and responses). A full channel blocks its producer.
	ChannelCapacity = 32

	// ReadChunkSize is the size of the buffer used for each read from the
	// peer connection.
	ReadChunkSize = 1024

	// DefaultTCPAddress is the listen address used when none is configured.
	DefaultTCPAddress = "localhost:3000"

	// SocketPathPrefix and SocketPathSuffix frame the default Unix socket path.
	SocketPathPrefix = "qtest-"
	SocketPathSuffix = ".sock"
)

// SocketPath returns the default Unix socket path for a given process ID.
func SocketPath(pid int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s%d%s", SocketPathPrefix, pid, SocketPathSuffix))
}

// CurrentSocketPath returns the default Unix socket path for the current process.
func CurrentSocketPath() string {
	return SocketPath(os.Getpid())
}
