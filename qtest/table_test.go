package main

import (
	"strings"
	"testing"

	"github.com/qtest/qtest-go/qtestprotocol"
)

func TestRenderTable(t *testing.T) {
	got := renderTable(
		[]string{"Line", "State"},
		[][]string{{"3", "raise"}, {"12"}},
		[]columnAlignment{alignRight, alignLeft},
	)

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines (border, header, rule, 2 rows, border), got %d:\n%s", len(lines), got)
	}
	if !strings.HasPrefix(lines[0], "╭") || !strings.HasPrefix(lines[5], "╰") {
		t.Errorf("expected rounded borders:\n%s", got)
	}
	if !strings.Contains(lines[3], "raise") {
		t.Errorf("first row = %q", lines[3])
	}
	if !strings.Contains(lines[4], "12") {
		t.Errorf("short row not padded: %q", lines[4])
	}
}

func TestRenderTableNoHeaders(t *testing.T) {
	if got := renderTable(nil, [][]string{{"x"}}, nil); got != "" {
		t.Errorf("renderTable(nil headers) = %q, want empty", got)
	}
}

func TestIRQLog(t *testing.T) {
	var log irqLog
	if got := log.render(); got != "No IRQs received." {
		t.Errorf("empty render = %q", got)
	}

	log.add(qtestprotocol.NewIRQEvent(3, qtestprotocol.IRQRaise))
	log.add(qtestprotocol.NewIRQEvent(3, qtestprotocol.IRQLower))

	records := log.snapshot()
	if len(records) != 2 || records[1].event.State != qtestprotocol.IRQLower {
		t.Fatalf("snapshot = %+v", records)
	}
	if out := log.render(); !strings.Contains(out, "raise") || !strings.Contains(out, "lower") {
		t.Errorf("render missing events:\n%s", out)
	}

	if n := log.clear(); n != 2 {
		t.Errorf("clear = %d, want 2", n)
	}
	if len(log.snapshot()) != 0 {
		t.Error("log not empty after clear")
	}
}
