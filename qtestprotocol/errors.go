package qtestprotocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for the qtest protocol.
var (
	// ErrNotConnected indicates a send was attempted before a peer attached.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected indicates AttachConnection was called twice.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrChannelClosed indicates the background reader stopped before a
	// response arrived. The connection is unusable after this.
	ErrChannelClosed = errors.New("response channel closed")

	// ErrUnexpectedResponse indicates a response of the wrong shape, such as
	// a bare OK where a value was required.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// ParseErrorKind categorizes parsing errors.
type ParseErrorKind int

const (
	// ErrKindInvalidIRQ indicates a line that is not an IRQ line.
	ErrKindInvalidIRQ ParseErrorKind = iota
	// ErrKindInvalidIRQState indicates an IRQ state other than raise/lower.
	ErrKindInvalidIRQState
	// ErrKindInvalidIRQLine indicates a missing or non-numeric IRQ line.
	ErrKindInvalidIRQLine
	// ErrKindInvalidCommand indicates an unknown or malformed command.
	ErrKindInvalidCommand
	// ErrKindInvalidAddress indicates an invalid address format.
	ErrKindInvalidAddress
	// ErrKindInvalidValue indicates an invalid numeric value.
	ErrKindInvalidValue
	// ErrKindMissingArgument indicates a required argument was not provided.
	ErrKindMissingArgument
)

// ParseError represents an error that occurred while parsing an IRQ line
// or a command typed by a user.
type ParseError struct {
	Kind    ParseErrorKind
	Value   string // The invalid value that caused the error
	Message string // Additional context
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	switch e.Kind {
	case ErrKindInvalidIRQ:
		return fmt.Sprintf("invalid IRQ string '%s'", e.Value)
	case ErrKindInvalidIRQState:
		return fmt.Sprintf("invalid IRQ type '%s'", e.Value)
	case ErrKindInvalidIRQLine:
		return fmt.Sprintf("invalid IRQ line '%s'", e.Value)
	case ErrKindInvalidCommand:
		return fmt.Sprintf("invalid command '%s'", e.Value)
	case ErrKindInvalidAddress:
		return fmt.Sprintf("invalid address '%s'", e.Value)
	case ErrKindInvalidValue:
		return fmt.Sprintf("invalid value '%s'", e.Value)
	case ErrKindMissingArgument:
		return e.Message
	default:
		return fmt.Sprintf("parse error: %s", e.Value)
	}
}

func newInvalidIRQError(s string) error {
	return &ParseError{Kind: ErrKindInvalidIRQ, Value: s}
}

func newInvalidIRQStateError(s string) error {
	return &ParseError{Kind: ErrKindInvalidIRQState, Value: s}
}

func newInvalidIRQLineError(s string) error {
	return &ParseError{Kind: ErrKindInvalidIRQLine, Value: s}
}

func newInvalidCommandError(cmd string) error {
	return &ParseError{Kind: ErrKindInvalidCommand, Value: cmd}
}

func newInvalidAddressError(addr string) error {
	return &ParseError{Kind: ErrKindInvalidAddress, Value: addr}
}

func newInvalidValueError(val string) error {
	return &ParseError{Kind: ErrKindInvalidValue, Value: val}
}

func newMissingArgumentError(msg string) error {
	return &ParseError{Kind: ErrKindMissingArgument, Message: msg}
}

// TransportError represents a bind, accept, send or read failure.
type TransportError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("transport %s failed", e.Op)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a new transport error.
func NewTransportError(op string, cause error) error {
	return &TransportError{Op: op, Cause: cause}
}

// FramingError reports a frame that is not valid UTF-8 text. It is fatal to
// the background reader.
type FramingError struct {
	Frame string
}

// Error implements the error interface.
func (e *FramingError) Error() string {
	return fmt.Sprintf("invalid text encoding in frame %q", e.Frame)
}

// RemoteError is an error response sent by QEMU.
type RemoteError struct {
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", e.Message)
}

// DecodeError reports a response that could not be decoded into the result
// type a command expects. Payload holds the raw response text.
type DecodeError struct {
	Command string
	Payload string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: could not decode response %q: %v", e.Command, e.Payload, e.Err)
}

// Unwrap returns the underlying parse or remote error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// closedError wraps ErrChannelClosed with the reason the reader stopped.
type closedError struct {
	cause error
}

func (e *closedError) Error() string {
	if e.cause == nil {
		return ErrChannelClosed.Error()
	}
	return fmt.Sprintf("%v: %v", ErrChannelClosed, e.cause)
}

func (e *closedError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrChannelClosed}
	}
	return []error{ErrChannelClosed, e.cause}
}
