package qtestprotocol

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine, its reader and its
// transport. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine is the qtest command engine.
//
// It owns the transport's send path and the receive end of the response
// channel. Each operation formats one request, writes it, waits for exactly
// one response and decodes it. The protocol has no request identifiers, so
// responses are paired with requests purely by order; the engine therefore
// runs one command at a time.
//
// IRQ events arrive independently on the channel returned by IRQs. That
// channel must be drained: when it is full the reader blocks and responses
// stop arriving.
type Engine struct {
	transport Transport
	responses <-chan Response
	irqs      <-chan IRQEvent
	reader    *frameReader
	logger    *slog.Logger
	session   uuid.UUID

	// callMu serializes commands so exactly one is outstanding.
	callMu sync.Mutex
	// orphaned counts responses owed to callers that stopped waiting.
	orphaned int
}

// NewEngine creates the transport through factory, bound to address, and
// starts the background reader. Call AttachConnection before sending
// commands.
func NewEngine(factory TransportFactory, address string, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:  discardLogger(),
		session: uuid.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("session", e.session.String())

	chunks := make(chan []byte, ChannelCapacity)
	responses := make(chan Response, ChannelCapacity)
	irqs := make(chan IRQEvent, ChannelCapacity)

	transport, err := factory(address, chunks, e.logger)
	if err != nil {
		return nil, err
	}

	e.transport = transport
	e.responses = responses
	e.irqs = irqs
	e.reader = newFrameReader(chunks, irqs, responses, e.logger)
	go e.reader.run()

	return e, nil
}

// Session returns the id attached to this engine's log records.
func (e *Engine) Session() uuid.UUID {
	return e.session
}

// AttachConnection blocks until QEMU connects to the transport.
func (e *Engine) AttachConnection(ctx context.Context) error {
	if err := e.transport.AttachConnection(ctx); err != nil {
		return err
	}
	e.logger.Info("qtest attached", "address", e.transport.Address())
	return nil
}

// Address returns the transport's listen address.
func (e *Engine) Address() string {
	return e.transport.Address()
}

// Close closes the transport. The IRQ channel closes once the reader has
// drained what was already received.
func (e *Engine) Close() error {
	return e.transport.Close()
}

// IRQs returns the stream of IRQ events in the order they were received.
// The channel is closed when the connection ends.
func (e *Engine) IRQs() <-chan IRQEvent {
	return e.irqs
}

// Done is closed when the background reader has stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.reader.done
}

// Exec sends a command and returns its raw response.
func (e *Engine) Exec(ctx context.Context, cmd Command) (Response, error) {
	// One request line must get exactly one response.
	if err := cmd.Validate(); err != nil {
		return Response{}, err
	}

	e.callMu.Lock()
	defer e.callMu.Unlock()

	// Nothing can answer once the reader is gone.
	select {
	case <-e.reader.done:
		return Response{}, e.closedErr()
	default:
	}

	line := cmd.FormatLine()
	e.logger.Debug("qtest send", "command", cmd.Verb(), "line", strings.TrimSuffix(line, LineTerminator))
	if _, err := e.transport.Send(line); err != nil {
		return Response{}, err
	}
	return e.await(ctx)
}

// Raw sends a line verbatim (a newline is appended) and returns its response.
func (e *Engine) Raw(ctx context.Context, line string) (Response, error) {
	return e.Exec(ctx, NewRawCommand(line))
}

// await receives the next response owed to the current caller. Responses
// owed to callers that gave up are discarded first. Must hold callMu.
func (e *Engine) await(ctx context.Context) (Response, error) {
	for {
		select {
		case resp, ok := <-e.responses:
			if !ok {
				return Response{}, e.closedErr()
			}
			if e.orphaned > 0 {
				e.orphaned--
				e.logger.Debug("qtest discarded late response", "payload", resp.Format())
				continue
			}
			return resp, nil
		case <-ctx.Done():
			e.orphaned++
			return Response{}, ctx.Err()
		}
	}
}

// closedErr explains why the response channel closed.
func (e *Engine) closedErr() error {
	if err := e.reader.Err(); err != nil {
		return &closedError{cause: err}
	}
	if src, ok := e.transport.(interface{ Err() error }); ok {
		if err := src.Err(); err != nil {
			return &closedError{cause: err}
		}
	}
	return &closedError{}
}

// ClockStep advances the virtual clock to the next timer deadline.
func (e *Engine) ClockStep(ctx context.Context) (Response, error) {
	return e.Exec(ctx, NewClockStepCommand(nil))
}

// ClockStepBy advances the virtual clock by ns nanoseconds.
func (e *Engine) ClockStepBy(ctx context.Context, ns uint64) (Response, error) {
	return e.Exec(ctx, NewClockStepCommand(&ns))
}

// ClockSet sets the virtual clock to ns and returns the clock QEMU reports.
func (e *Engine) ClockSet(ctx context.Context, ns uint64) (uint64, error) {
	cmd := NewClockSetCommand(ns)
	resp, err := e.Exec(ctx, cmd)
	if err != nil {
		return 0, err
	}
	val, err := responseValue(cmd, resp)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, &DecodeError{Command: cmd.Verb(), Payload: val, Err: err}
	}
	return n, nil
}

// IRQInterceptIn intercepts the GPIO inputs of the device at path. QEMU
// rejects a second interception of the same path.
func (e *Engine) IRQInterceptIn(ctx context.Context, path string) (Response, error) {
	return e.Exec(ctx, NewIRQInterceptInCommand(path))
}

// IRQInterceptOut intercepts the GPIO outputs of the device at path.
func (e *Engine) IRQInterceptOut(ctx context.Context, path string) (Response, error) {
	return e.Exec(ctx, NewIRQInterceptOutCommand(path))
}

// SetIRQIn drives input line of the named GPIO at path to level.
func (e *Engine) SetIRQIn(ctx context.Context, path, name string, line uint, level int) (Response, error) {
	return e.Exec(ctx, NewSetIRQInCommand(path, name, line, level))
}

// InB reads a byte from an I/O port.
func (e *Engine) InB(ctx context.Context, addr uint64) (uint8, error) {
	v, err := e.readUint(ctx, NewPortInCommand(Width8, addr))
	return uint8(v), err
}

// InW reads a 16-bit word from an I/O port.
func (e *Engine) InW(ctx context.Context, addr uint64) (uint16, error) {
	v, err := e.readUint(ctx, NewPortInCommand(Width16, addr))
	return uint16(v), err
}

// InL reads a 32-bit long from an I/O port.
func (e *Engine) InL(ctx context.Context, addr uint64) (uint32, error) {
	v, err := e.readUint(ctx, NewPortInCommand(Width32, addr))
	return uint32(v), err
}

// OutB writes a byte to an I/O port.
func (e *Engine) OutB(ctx context.Context, addr uint64, val uint8) (Response, error) {
	return e.Exec(ctx, NewPortOutCommand(Width8, addr, uint64(val)))
}

// OutW writes a 16-bit word to an I/O port.
func (e *Engine) OutW(ctx context.Context, addr uint64, val uint16) (Response, error) {
	return e.Exec(ctx, NewPortOutCommand(Width16, addr, uint64(val)))
}

// OutL writes a 32-bit long to an I/O port.
func (e *Engine) OutL(ctx context.Context, addr uint64, val uint32) (Response, error) {
	return e.Exec(ctx, NewPortOutCommand(Width32, addr, uint64(val)))
}

// ReadB reads a byte of guest memory.
func (e *Engine) ReadB(ctx context.Context, addr uint64) (uint8, error) {
	v, err := e.readUint(ctx, NewMemReadCommand(Width8, addr))
	return uint8(v), err
}

// ReadW reads a 16-bit word of guest memory.
func (e *Engine) ReadW(ctx context.Context, addr uint64) (uint16, error) {
	v, err := e.readUint(ctx, NewMemReadCommand(Width16, addr))
	return uint16(v), err
}

// ReadL reads a 32-bit long of guest memory.
func (e *Engine) ReadL(ctx context.Context, addr uint64) (uint32, error) {
	v, err := e.readUint(ctx, NewMemReadCommand(Width32, addr))
	return uint32(v), err
}

// ReadQ reads a 64-bit quad of guest memory.
func (e *Engine) ReadQ(ctx context.Context, addr uint64) (uint64, error) {
	return e.readUint(ctx, NewMemReadCommand(Width64, addr))
}

// WriteB writes a byte of guest memory.
func (e *Engine) WriteB(ctx context.Context, addr uint64, val uint8) (Response, error) {
	return e.Exec(ctx, NewMemWriteCommand(Width8, addr, uint64(val)))
}

// WriteW writes a 16-bit word of guest memory.
func (e *Engine) WriteW(ctx context.Context, addr uint64, val uint16) (Response, error) {
	return e.Exec(ctx, NewMemWriteCommand(Width16, addr, uint64(val)))
}

// WriteL writes a 32-bit long of guest memory.
func (e *Engine) WriteL(ctx context.Context, addr uint64, val uint32) (Response, error) {
	return e.Exec(ctx, NewMemWriteCommand(Width32, addr, uint64(val)))
}

// WriteQ writes a 64-bit quad of guest memory.
func (e *Engine) WriteQ(ctx context.Context, addr uint64, val uint64) (Response, error) {
	return e.Exec(ctx, NewMemWriteCommand(Width64, addr, val))
}

// Read reads size bytes of guest memory and returns QEMU's hex text as is.
func (e *Engine) Read(ctx context.Context, addr, size uint64) (string, error) {
	cmd := NewReadCommand(addr, size)
	resp, err := e.Exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	return responseValue(cmd, resp)
}

// Write writes hex data (with or without a 0x prefix) at addr. The length
// sent is the text length of data.
func (e *Engine) Write(ctx context.Context, addr uint64, data string) (Response, error) {
	return e.Exec(ctx, NewWriteCommand(addr, data, nil))
}

// WriteLen writes hex data at addr with an explicit length argument. A
// negative length is rejected before anything is sent.
func (e *Engine) WriteLen(ctx context.Context, addr uint64, data string, length int) (Response, error) {
	return e.Exec(ctx, NewWriteCommand(addr, data, &length))
}

// B64Write writes data at addr using base64 encoding on the wire.
func (e *Engine) B64Write(ctx context.Context, addr uint64, data []byte) (Response, error) {
	return e.Exec(ctx, NewB64WriteCommand(addr, data))
}

// readUint runs a width read and decodes the hex payload at cmd.Width.
func (e *Engine) readUint(ctx context.Context, cmd Command) (uint64, error) {
	resp, err := e.Exec(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return DecodeUint(cmd, resp)
}

// DecodeUint decodes the hex payload of resp (an optional 0x prefix is
// allowed) as an unsigned integer of cmd.Width bits.
func DecodeUint(cmd Command, resp Response) (uint64, error) {
	val, err := responseValue(cmd, resp)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(val, "0x"), 16, cmd.Width.Bits())
	if err != nil {
		return 0, &DecodeError{Command: cmd.Verb(), Payload: val, Err: err}
	}
	return n, nil
}

// responseValue returns the OK payload or a DecodeError describing why the
// response had none.
func responseValue(cmd Command, resp Response) (string, error) {
	switch resp.Kind {
	case ResponseOKVal:
		return resp.Payload, nil
	case ResponseErr:
		return "", &DecodeError{Command: cmd.Verb(), Payload: resp.Payload, Err: &RemoteError{Message: resp.Payload}}
	default:
		return "", &DecodeError{Command: cmd.Verb(), Payload: resp.Format(), Err: ErrUnexpectedResponse}
	}
}

// IsClosed reports whether err means the connection is gone for good.
func IsClosed(err error) bool {
	return errors.Is(err, ErrChannelClosed)
}
