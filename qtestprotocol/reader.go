package qtestprotocol

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"
)

// FrameBuffer reassembles raw chunks into newline-complete frames.
// The zero value is ready to use.
type FrameBuffer struct {
	buf bytes.Buffer
}

// Push appends a chunk and returns the completed frame, if any. A frame is
// every complete line buffered so far, including the trailing newline; an
// unterminated tail stays buffered until a later chunk completes it.
func (f *FrameBuffer) Push(chunk []byte) (string, bool) {
	f.buf.Write(chunk)

	data := f.buf.Bytes()
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return "", false
	}

	frame := string(data[:end+1])
	f.buf.Next(end + 1)
	return frame, true
}

// Pending returns the number of buffered bytes not yet part of a frame.
func (f *FrameBuffer) Pending() int {
	return f.buf.Len()
}

// splitLines splits a frame into its lines, dropping a trailing carriage
// return from each.
func splitLines(block string) []string {
	lines := strings.Split(block, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// Demultiplex classifies the lines of a frame.
//
// Each line that parses as an IRQ yields one IRQ event. Each other non-blank
// line yields one Response parsed from the whole block, not from the line
// itself, so a block of IRQ lines followed by one response line produces a
// response whose text includes the IRQ lines. Clients depend on this exact
// sequencing. The returned order of each slice follows the line order.
func Demultiplex(block string) ([]IRQEvent, []Response) {
	var irqs []IRQEvent
	var responses []Response
	demultiplex(block,
		func(irq IRQEvent) { irqs = append(irqs, irq) },
		func(resp Response) { responses = append(responses, resp) },
	)
	return irqs, responses
}

func demultiplex(block string, onIRQ func(IRQEvent), onResponse func(Response)) {
	block = strings.Trim(block, "\x00")
	whole := strings.TrimRight(block, "\r\n")

	for _, line := range splitLines(block) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if irq, err := ParseIRQ(line); err == nil {
			onIRQ(irq)
			continue
		}
		onResponse(ParseResponse(whole))
	}
}

// frameReader turns the transport's chunk stream into IRQ events and
// responses. It runs in its own goroutine for the life of the connection.
type frameReader struct {
	chunks    <-chan []byte
	irqs      chan<- IRQEvent
	responses chan<- Response
	logger    *slog.Logger

	mu   sync.Mutex
	err  error
	done chan struct{}
}

func newFrameReader(chunks <-chan []byte, irqs chan<- IRQEvent, responses chan<- Response, logger *slog.Logger) *frameReader {
	return &frameReader{
		chunks:    chunks,
		irqs:      irqs,
		responses: responses,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// run consumes chunks until the chunk channel closes or a fatal framing
// error occurs, then closes both output channels.
func (r *frameReader) run() {
	defer func() {
		close(r.irqs)
		close(r.responses)
		close(r.done)
	}()

	var frames FrameBuffer
	for chunk := range r.chunks {
		frame, ok := frames.Push(chunk)
		if !ok {
			continue
		}

		if !utf8.ValidString(frame) {
			err := &FramingError{Frame: frame}
			r.logger.Error("qtest reader stopped", "error", err)
			r.setErr(err)
			// Drain so the forwarding goroutine is never blocked on a dead reader.
			go func() {
				for range r.chunks {
				}
			}()
			return
		}

		r.dispatch(frame)
	}

	if frames.Pending() > 0 {
		r.logger.Debug("qtest reader dropped unterminated data", "bytes", frames.Pending())
	}
	r.logger.Debug("qtest reader finished")
}

// dispatch routes one frame, blocking while the target channel is full.
func (r *frameReader) dispatch(frame string) {
	demultiplex(frame,
		func(irq IRQEvent) {
			r.logger.Debug("qtest irq", "line", irq.Line, "state", irq.State.String())
			r.irqs <- irq
		},
		func(resp Response) {
			r.logger.Debug("qtest response", "kind", resp.Kind.String(), "payload", resp.Payload)
			r.responses <- resp
		},
	)
}

func (r *frameReader) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Err returns the fatal error that stopped the reader, if any.
func (r *frameReader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
