package qtestprotocol

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// CommandType represents the type of qtest command.
type CommandType int

const (
	// Clock control
	CmdClockStep CommandType = iota
	CmdClockSet

	// IRQ interception
	CmdIRQInterceptIn
	CmdIRQInterceptOut
	CmdSetIRQIn

	// Port I/O (in{b,w,l} / out{b,w,l})
	CmdPortIn
	CmdPortOut

	// MMIO (read{b,w,l,q} / write{b,w,l,q})
	CmdMemRead
	CmdMemWrite

	// Bulk memory
	CmdRead
	CmdWrite
	CmdB64Write

	// Raw line typed by a user, sent verbatim
	CmdRaw
)

// Width is the access width of a port or MMIO operation.
type Width int

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// Suffix returns the verb suffix qtest uses for the width (b, w, l, q).
func (w Width) Suffix() string {
	switch w {
	case Width8:
		return "b"
	case Width16:
		return "w"
	case Width32:
		return "l"
	case Width64:
		return "q"
	default:
		return ""
	}
}

// Bits returns the width in bits.
func (w Width) Bits() int {
	return int(w)
}

// widthFromSuffix maps a verb suffix back to a Width.
func widthFromSuffix(s string) (Width, bool) {
	switch s {
	case "b":
		return Width8, true
	case "w":
		return Width16, true
	case "l":
		return Width32, true
	case "q":
		return Width64, true
	default:
		return 0, false
	}
}

// Command represents a qtest request with its arguments.
// Use the constructor functions (NewClockStepCommand, NewMemReadCommand,
// etc.) to create Command instances.
type Command struct {
	Type CommandType

	// Fields used by various commands (only relevant fields are populated)
	Width     Width  // For port and MMIO accesses
	Address   uint64 // For port, MMIO and bulk memory commands
	Value     uint64 // For out/write values
	Count     uint64 // For clock_step, clock_set, read size
	CountSet  bool   // Whether Count was explicitly provided (clock_step)
	Path      string // QOM path for IRQ commands
	Name      string // IRQ name for set_irq_in
	Line      uint   // IRQ line for set_irq_in
	Level     int    // IRQ level for set_irq_in
	Data      string // Hex text for write
	Length    int    // Explicit length for write
	LengthSet bool   // Whether Length overrides the data length
	Bytes     []byte // Raw bytes for b64write
	Text      string // Verbatim line for raw commands
}

// NewClockStepCommand creates a clock_step command. If ns is nil QEMU steps
// to the next timer deadline.
func NewClockStepCommand(ns *uint64) Command {
	cmd := Command{Type: CmdClockStep}
	if ns != nil {
		cmd.Count = *ns
		cmd.CountSet = true
	}
	return cmd
}

// NewClockSetCommand creates a clock_set command.
func NewClockSetCommand(ns uint64) Command {
	return Command{Type: CmdClockSet, Count: ns, CountSet: true}
}

// NewIRQInterceptInCommand intercepts the GPIO inputs of the device at path.
// QEMU accepts only one interception per path and direction.
func NewIRQInterceptInCommand(path string) Command {
	return Command{Type: CmdIRQInterceptIn, Path: path}
}

// NewIRQInterceptOutCommand intercepts the GPIO outputs of the device at path.
func NewIRQInterceptOutCommand(path string) Command {
	return Command{Type: CmdIRQInterceptOut, Path: path}
}

// NewSetIRQInCommand sets input line of the named IRQ at path to level.
func NewSetIRQInCommand(path, name string, line uint, level int) Command {
	return Command{Type: CmdSetIRQIn, Path: path, Name: name, Line: line, Level: level}
}

// NewPortInCommand creates an in{b,w,l} command.
func NewPortInCommand(width Width, address uint64) Command {
	return Command{Type: CmdPortIn, Width: width, Address: address}
}

// NewPortOutCommand creates an out{b,w,l} command.
func NewPortOutCommand(width Width, address, value uint64) Command {
	return Command{Type: CmdPortOut, Width: width, Address: address, Value: value}
}

// NewMemReadCommand creates a read{b,w,l,q} command.
func NewMemReadCommand(width Width, address uint64) Command {
	return Command{Type: CmdMemRead, Width: width, Address: address}
}

// NewMemWriteCommand creates a write{b,w,l,q} command.
func NewMemWriteCommand(width Width, address, value uint64) Command {
	return Command{Type: CmdMemWrite, Width: width, Address: address, Value: value}
}

// NewReadCommand creates a bulk read of size bytes at address.
func NewReadCommand(address, size uint64) Command {
	return Command{Type: CmdRead, Address: address, Count: size, CountSet: true}
}

// NewWriteCommand creates a bulk write of hex data at address. If length is
// nil the length sent is the text length of data as given.
func NewWriteCommand(address uint64, data string, length *int) Command {
	cmd := Command{Type: CmdWrite, Address: address, Data: data}
	if length != nil {
		cmd.Length = *length
		cmd.LengthSet = true
	}
	return cmd
}

// NewB64WriteCommand creates a b64write of the raw bytes at address.
func NewB64WriteCommand(address uint64, data []byte) Command {
	return Command{Type: CmdB64Write, Address: address, Bytes: data}
}

// NewRawCommand creates a command that sends text verbatim.
func NewRawCommand(text string) Command {
	return Command{Type: CmdRaw, Text: text}
}

// Verb returns the protocol verb of the command.
func (c Command) Verb() string {
	switch c.Type {
	case CmdClockStep:
		return "clock_step"
	case CmdClockSet:
		return "clock_set"
	case CmdIRQInterceptIn:
		return "irq_intercept_in"
	case CmdIRQInterceptOut:
		return "irq_intercept_out"
	case CmdSetIRQIn:
		return "set_irq_in"
	case CmdPortIn:
		return "in" + c.Width.Suffix()
	case CmdPortOut:
		return "out" + c.Width.Suffix()
	case CmdMemRead:
		return "read" + c.Width.Suffix()
	case CmdMemWrite:
		return "write" + c.Width.Suffix()
	case CmdRead:
		return "read"
	case CmdWrite:
		return "write"
	case CmdB64Write:
		return "b64write"
	case CmdRaw:
		if fields := strings.Fields(c.Text); len(fields) > 0 {
			return fields[0]
		}
		return ""
	default:
		return ""
	}
}

// WriteLength returns the length argument sent with a bulk write.
func (c Command) WriteLength() int {
	if c.LengthSet {
		return c.Length
	}
	return len(c.Data)
}

// Format returns the command formatted for transmission, without newline.
func (c Command) Format() string {
	switch c.Type {
	case CmdClockStep:
		if !c.CountSet {
			return "clock_step"
		}
		return fmt.Sprintf("clock_step %d", c.Count)
	case CmdClockSet:
		return fmt.Sprintf("clock_set %d", c.Count)
	case CmdIRQInterceptIn, CmdIRQInterceptOut:
		return fmt.Sprintf("%s %s", c.Verb(), c.Path)
	case CmdSetIRQIn:
		return fmt.Sprintf("set_irq_in %s %s %d %d", c.Path, c.Name, c.Line, c.Level)
	case CmdPortIn, CmdMemRead:
		return fmt.Sprintf("%s %#x", c.Verb(), c.Address)
	case CmdPortOut, CmdMemWrite:
		return fmt.Sprintf("%s %#x %#x", c.Verb(), c.Address, c.Value)
	case CmdRead:
		return fmt.Sprintf("read %#x %d", c.Address, c.Count)
	case CmdWrite:
		return fmt.Sprintf("write %#x %d 0x%s", c.Address, c.WriteLength(), strings.TrimPrefix(c.Data, "0x"))
	case CmdB64Write:
		return fmt.Sprintf("b64write %#x %d %s", c.Address, len(c.Bytes), base64.StdEncoding.EncodeToString(c.Bytes))
	case CmdRaw:
		return strings.TrimRight(c.Text, "\r\n")
	default:
		return ""
	}
}

// Validate reports commands that cannot be sent as a single request line:
// arguments containing a line break and negative write lengths.
func (c Command) Validate() error {
	if c.Type == CmdWrite && c.LengthSet && c.Length < 0 {
		return newInvalidValueError(strconv.Itoa(c.Length))
	}
	if text := c.Format(); strings.ContainsAny(text, "\r\n") {
		return newInvalidCommandError(text)
	}
	return nil
}

// FormatLine returns the command formatted as a complete protocol line with newline.
func (c Command) FormatLine() string {
	return c.Format() + LineTerminator
}
