package qtestprotocol

import (
	"fmt"
	"strconv"
	"strings"
)

// IRQState is the state an interrupt line moved to.
type IRQState int

const (
	// IRQRaise indicates the line was raised.
	IRQRaise IRQState = iota
	// IRQLower indicates the line was lowered.
	IRQLower
)

// String returns the protocol token for the state.
func (s IRQState) String() string {
	switch s {
	case IRQRaise:
		return IRQRaiseToken
	case IRQLower:
		return IRQLowerToken
	default:
		return "unknown"
	}
}

// IRQEvent is an asynchronous interrupt notification from QEMU.
//
// The meaning of Line depends on the emulated machine and on which device
// was intercepted with irq_intercept_in/out.
type IRQEvent struct {
	Line  uint
	State IRQState
}

// NewIRQEvent creates an IRQ event.
func NewIRQEvent(line uint, state IRQState) IRQEvent {
	return IRQEvent{Line: line, State: state}
}

// Format returns the event as it appears on the wire, without newline.
func (e IRQEvent) Format() string {
	return fmt.Sprintf("%s %s %d", IRQToken, e.State, e.Line)
}

// String implements fmt.Stringer.
func (e IRQEvent) String() string {
	return e.Format()
}

// ParseIRQ parses a line of the form "IRQ raise|lower <line>". Any other
// shape, including trailing tokens or a negative line, is an error.
func ParseIRQ(line string) (IRQEvent, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != IRQToken {
		return IRQEvent{}, newInvalidIRQError(line)
	}

	if len(fields) < 2 {
		return IRQEvent{}, newInvalidIRQStateError("")
	}
	var state IRQState
	switch fields[1] {
	case IRQRaiseToken:
		state = IRQRaise
	case IRQLowerToken:
		state = IRQLower
	default:
		return IRQEvent{}, newInvalidIRQStateError(fields[1])
	}

	if len(fields) < 3 {
		return IRQEvent{}, newInvalidIRQLineError("")
	}
	n, err := strconv.ParseUint(fields[2], 10, strconv.IntSize)
	if err != nil {
		return IRQEvent{}, newInvalidIRQLineError(fields[2])
	}

	if len(fields) > 3 {
		return IRQEvent{}, newInvalidIRQError(line)
	}
	return NewIRQEvent(uint(n), state), nil
}
