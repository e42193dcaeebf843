package qtestprotocol

import (
	"strconv"
	"strings"
)

// CommandParser parses qtest commands typed as text, e.g. at a REPL.
type CommandParser struct{}

// NewCommandParser creates a new command parser.
func NewCommandParser() *CommandParser {
	return &CommandParser{}
}

// Parse parses a command line into a Command.
func (p *CommandParser) Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, newInvalidCommandError("")
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	// Clock
	case "clock_step":
		return p.parseClockStep(args)
	case "clock_set":
		return p.parseClockSet(args)

	// IRQ interception
	case "irq_intercept_in":
		if len(args) != 1 {
			return Command{}, newMissingArgumentError("irq_intercept_in requires a QOM path")
		}
		return NewIRQInterceptInCommand(args[0]), nil
	case "irq_intercept_out":
		if len(args) != 1 {
			return Command{}, newMissingArgumentError("irq_intercept_out requires a QOM path")
		}
		return NewIRQInterceptOutCommand(args[0]), nil
	case "set_irq_in":
		return p.parseSetIRQIn(args)

	// Bulk memory
	case "read":
		return p.parseRead(args)
	case "write":
		return p.parseWrite(args)
	case "b64write":
		return p.parseB64Write(args)
	}

	// Width-suffixed accesses: in{b,w,l}, out{b,w,l}, read{b,w,l,q}, write{b,w,l,q}
	for _, prefix := range []string{"in", "out", "read", "write"} {
		suffix, ok := strings.CutPrefix(verb, prefix)
		if !ok || len(suffix) != 1 {
			continue
		}
		width, ok := widthFromSuffix(suffix)
		if !ok || (width == Width64 && (prefix == "in" || prefix == "out")) {
			return Command{}, newInvalidCommandError(verb)
		}
		switch prefix {
		case "in", "read":
			return p.parseAccessRead(verb, prefix, width, args)
		default:
			return p.parseAccessWrite(verb, prefix, width, args)
		}
	}

	return Command{}, newInvalidCommandError(verb)
}

func (p *CommandParser) parseClockStep(args []string) (Command, error) {
	switch len(args) {
	case 0:
		return NewClockStepCommand(nil), nil
	case 1:
		ns, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return Command{}, newInvalidValueError(args[0])
		}
		return NewClockStepCommand(&ns), nil
	default:
		return Command{}, newMissingArgumentError("clock_step takes at most one argument")
	}
}

func (p *CommandParser) parseClockSet(args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, newMissingArgumentError("clock_set requires a time in nanoseconds")
	}
	ns, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return Command{}, newInvalidValueError(args[0])
	}
	return NewClockSetCommand(ns), nil
}

func (p *CommandParser) parseSetIRQIn(args []string) (Command, error) {
	if len(args) != 4 {
		return Command{}, newMissingArgumentError("set_irq_in requires path, name, line and level")
	}
	line, err := strconv.ParseUint(args[2], 10, strconv.IntSize)
	if err != nil {
		return Command{}, newInvalidValueError(args[2])
	}
	level, err := strconv.Atoi(args[3])
	if err != nil {
		return Command{}, newInvalidValueError(args[3])
	}
	return NewSetIRQInCommand(args[0], args[1], uint(line), level), nil
}

func (p *CommandParser) parseAccessRead(verb, prefix string, width Width, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, newMissingArgumentError(verb + " requires an address")
	}
	addr, ok := parseAddress(args[0])
	if !ok {
		return Command{}, newInvalidAddressError(args[0])
	}
	if prefix == "in" {
		return NewPortInCommand(width, addr), nil
	}
	return NewMemReadCommand(width, addr), nil
}

func (p *CommandParser) parseAccessWrite(verb, prefix string, width Width, args []string) (Command, error) {
	if len(args) != 2 {
		return Command{}, newMissingArgumentError(verb + " requires an address and a value")
	}
	addr, ok := parseAddress(args[0])
	if !ok {
		return Command{}, newInvalidAddressError(args[0])
	}
	val, ok := parseValue(args[1], width.Bits())
	if !ok {
		return Command{}, newInvalidValueError(args[1])
	}
	if prefix == "out" {
		return NewPortOutCommand(width, addr, val), nil
	}
	return NewMemWriteCommand(width, addr, val), nil
}

func (p *CommandParser) parseRead(args []string) (Command, error) {
	if len(args) != 2 {
		return Command{}, newMissingArgumentError("read requires an address and a size")
	}
	addr, ok := parseAddress(args[0])
	if !ok {
		return Command{}, newInvalidAddressError(args[0])
	}
	size, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return Command{}, newInvalidValueError(args[1])
	}
	return NewReadCommand(addr, size), nil
}

func (p *CommandParser) parseWrite(args []string) (Command, error) {
	if len(args) != 2 && len(args) != 3 {
		return Command{}, newMissingArgumentError("write requires an address and hex data (optionally: address length data)")
	}
	addr, ok := parseAddress(args[0])
	if !ok {
		return Command{}, newInvalidAddressError(args[0])
	}

	if len(args) == 2 {
		if !isHex(strings.TrimPrefix(args[1], "0x")) {
			return Command{}, newInvalidValueError(args[1])
		}
		return NewWriteCommand(addr, args[1], nil), nil
	}

	length, err := strconv.Atoi(args[1])
	if err != nil || length < 0 {
		return Command{}, newInvalidValueError(args[1])
	}
	if !isHex(strings.TrimPrefix(args[2], "0x")) {
		return Command{}, newInvalidValueError(args[2])
	}
	return NewWriteCommand(addr, args[2], &length), nil
}

func (p *CommandParser) parseB64Write(args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, newMissingArgumentError("b64write requires an address and data")
	}
	addr, ok := parseAddress(args[0])
	if !ok {
		return Command{}, newInvalidAddressError(args[0])
	}
	return NewB64WriteCommand(addr, []byte(strings.Join(args[1:], " "))), nil
}

// Helper functions

// parseAddress parses an address in 0xXXXX, $XXXX, or decimal format.
func parseAddress(s string) (uint64, bool) {
	return parseValue(s, 64)
}

// parseValue parses a number in 0x/$ hex or decimal that fits in bits.
func parseValue(s string, bits int) (uint64, bool) {
	s = strings.TrimSpace(s)
	base := 10
	if rest, ok := strings.CutPrefix(s, "$"); ok {
		s, base = rest, 16
	} else if len(s) > 2 && strings.EqualFold(s[:2], "0x") {
		s, base = s[2:], 16
	}
	val, err := strconv.ParseUint(s, base, bits)
	if err != nil {
		return 0, false
	}
	return val, true
}

// isHex reports whether s is a non-empty string of hex digits.
func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
