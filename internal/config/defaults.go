package config

import "github.com/qtest/qtest-go/qtestprotocol"

const (
	// TransportUnix and TransportTCP are the accepted transport kinds.
	TransportUnix = "unix"
	TransportTCP  = "tcp"

	defaultTransportKind = TransportUnix
	defaultLogLevel      = "info"
	defaultLogFormat     = "auto"
	defaultHistoryFile   = "~/.qtest_history"
	defaultHistoryLimit  = 500
	defaultQEMUBinary    = "qemu-system-x86_64"
)

// Default returns a Config populated with repository defaults. An empty
// transport address is filled in during normalization, once the kind is
// known.
func Default() Config {
	return Config{
		Transport: Transport{
			Kind: defaultTransportKind,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		REPL: REPL{
			HistoryFile:  defaultHistoryFile,
			HistoryLimit: defaultHistoryLimit,
		},
		QEMU: QEMU{
			Binary: defaultQEMUBinary,
		},
	}
}

// DefaultAddress returns the listen address used for kind when none is
// configured.
func DefaultAddress(kind string) string {
	if kind == TransportTCP {
		return qtestprotocol.DefaultTCPAddress
	}
	return qtestprotocol.CurrentSocketPath()
}
