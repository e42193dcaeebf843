// =============================================================================
// translate.go - Shorthand Aliases
// =============================================================================
//
// The REPL accepts every qtest verb as-is (clock_step, readl, outb, ...).
// For the commands typed most often while poking at a machine it also
// accepts short aliases, which are expanded before parsing:
//
//	s [ns]                  → clock_step [ns]
//	t <ns>                  → clock_set <ns>
//	m <addr> <size>         → read <addr> <size>
//	f <addr> <hex>          → write <addr> <hex>
//	ii <path>               → irq_intercept_in <path>
//	io <path>               → irq_intercept_out <path>
//	irq <path> <name> <n> <level> → set_irq_in <path> <name> <n> <level>
//
// =============================================================================

package main

import "strings"

// aliases maps a shorthand verb to the qtest verb it stands for.
var aliases = map[string]string{
	"s":   "clock_step",
	"t":   "clock_set",
	"m":   "read",
	"f":   "write",
	"ii":  "irq_intercept_in",
	"io":  "irq_intercept_out",
	"irq": "set_irq_in",
}

// expandAlias replaces a leading alias with its qtest verb. Lines that
// don't start with an alias are returned trimmed but otherwise unchanged.
//
// GO CONCEPT: strings.Cut
// -----------------------
// strings.Cut(s, sep) splits s around the first sep and reports whether
// sep was found. It replaces the older SplitN(s, sep, 2) + length check.
//
// Compare with Python: `head, sep, tail = s.partition(" ")`.
func expandAlias(line string) string {
	trimmed := strings.TrimSpace(line)
	verb, rest, _ := strings.Cut(trimmed, " ")

	full, ok := aliases[strings.ToLower(verb)]
	if !ok {
		return trimmed
	}
	if rest = strings.TrimSpace(rest); rest == "" {
		return full
	}
	return full + " " + rest
}
