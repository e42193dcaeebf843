// =============================================================================
// help.go - REPL Help Text
// =============================================================================
//
//   - ".help"          overview of REPL commands and qtest verbs
//   - ".help <topic>"  detailed help for one command or alias
//
// =============================================================================

package main

import (
	"fmt"
	"io"
	"strings"
)

// replHelp holds the dot-commands handled locally by the REPL.
var replHelp = map[string]string{
	"help": `.help [topic]
  Show the command overview, or detailed help for one topic.
  Examples: .help readl   .help s   .help .irqs`,

	"quit": `.quit
  Close the connection and exit. Ctrl-D does the same.`,

	"irqs": `.irqs
  Show the IRQ notifications received since the session started (or since
  the last .clear) with their arrival order.`,

	"clear": `.clear
  Forget the recorded IRQ notifications.`,
}

// protocolHelp holds the qtest verbs and their aliases.
var protocolHelp = map[string]string{
	"clock_step": `clock_step [ns]     (alias: s)
  Advance the virtual clock by ns nanoseconds, or to the next timer
  deadline when ns is omitted. Prints the new clock value.`,

	"clock_set": `clock_set <ns>      (alias: t)
  Set the virtual clock to an absolute value in nanoseconds. Prints the
  new clock value.`,

	"irq_intercept_in": `irq_intercept_in <qom-path>     (alias: ii)
  Intercept the GPIO input lines of the device at qom-path. Raised and
  lowered lines are reported as "IRQ raise N" / "IRQ lower N".`,

	"irq_intercept_out": `irq_intercept_out <qom-path>    (alias: io)
  Intercept the GPIO output lines of the device at qom-path.`,

	"set_irq_in": `set_irq_in <qom-path> <name> <line> <level>    (alias: irq)
  Drive an input IRQ line to level. Use "unnamed-gpio-in" as name for
  unnamed GPIOs. Example: set_irq_in /machine/soc unnamed-gpio-in 3 1`,

	"in": `inb <port> | inw <port> | inl <port>
  Read an 8, 16 or 32 bit value from an I/O port. Prints the value in hex.`,

	"out": `outb <port> <val> | outw <port> <val> | outl <port> <val>
  Write an 8, 16 or 32 bit value to an I/O port.`,

	"readx": `readb <addr> | readw <addr> | readl <addr> | readq <addr>
  Read an 8, 16, 32 or 64 bit value from guest memory. Prints it in hex.`,

	"writex": `writeb <addr> <val> | writew | writel | writeq
  Write an 8, 16, 32 or 64 bit value to guest memory.`,

	"read": `read <addr> <size>  (alias: m)
  Read size bytes of guest memory. QEMU answers with a hex dump.`,

	"write": `write <addr> [len] <hex>    (alias: f)
  Write hex-encoded bytes to guest memory. len defaults to the length of
  the hex text. Example: write 0x1000 0xdeadbeef`,

	"b64write": `b64write <addr> <text>
  Write the bytes of text to guest memory, base64-encoded on the wire.`,
}

// helpTopicAliases maps alternate topic names to protocolHelp keys.
var helpTopicAliases = map[string]string{
	"inb": "in", "inw": "in", "inl": "in",
	"outb": "out", "outw": "out", "outl": "out",
	"readb": "readx", "readw": "readx", "readl": "readx", "readq": "readx",
	"writeb": "writex", "writew": "writex", "writel": "writex", "writeq": "writex",
}

// helpText looks up the detailed help for topic. A leading dot is ignored
// so ".help .quit" and ".help quit" behave the same.
func helpText(topic string) (string, bool) {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(topic)), ".")

	if text, ok := replHelp[key]; ok {
		return text, true
	}
	if full, ok := aliases[key]; ok {
		key = full
	}
	if full, ok := helpTopicAliases[key]; ok {
		key = full
	}
	text, ok := protocolHelp[key]
	return text, ok
}

// printHelp writes the overview (empty topic) or the help for one topic.
func printHelp(out, errOut io.Writer, topic string) {
	if strings.TrimSpace(topic) == "" {
		printHelpOverview(out)
		return
	}
	if text, ok := helpText(topic); ok {
		fmt.Fprintln(out, text)
		return
	}
	fmt.Fprintf(errOut, "Error: No help for '%s'. Type .help to see available commands.\n", topic)
}

func printHelpOverview(out io.Writer) {
	fmt.Fprint(out, `REPL Commands:
  .help [topic]     Show help (or help for a specific command)
  .irqs             List IRQ notifications received so far
  .clear            Forget recorded IRQ notifications
  .quit             Exit

Clock:
  clock_step [ns]   s     Advance the virtual clock
  clock_set <ns>    t     Set the virtual clock

IRQ:
  irq_intercept_in <path>               ii
  irq_intercept_out <path>              io
  set_irq_in <path> <name> <n> <level>  irq

Port I/O:
  inb/inw/inl <port>
  outb/outw/outl <port> <val>

Memory:
  readb/readw/readl/readq <addr>
  writeb/writew/writel/writeq <addr> <val>
  read <addr> <size>          m
  write <addr> [len] <hex>    f
  b64write <addr> <text>

Numbers may be decimal, 0x-prefixed hex or $-prefixed hex.
`)
}
