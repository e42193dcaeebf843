// Package qtestprotocol implements the client side of QEMU's qtest
// machine-control protocol.
//
// QEMU started with -qtest connects to a listening socket owned by this
// package. Requests and responses are newline-terminated text lines on that
// single stream; asynchronous IRQ notifications are interleaved with them.
//
// # Protocol Overview
//
//	Request (client -> QEMU):   <verb> [arguments...]\n
//	Success response:           OK\n
//	Success response w/ value:  OK <payload...>\n
//	Error response:             anything else\n
//	Async IRQ event:            IRQ raise|lower <line>\n
//
// Example session:
//
//	CLI:  irq_intercept_in /machine/soc
//	QEMU: OK
//	CLI:  readl 0x40020010
//	QEMU: OK 0x00002000
//	QEMU: IRQ raise 13
//	CLI:  clock_step
//	QEMU: OK 1000000
//
// The protocol has no request identifiers. Responses are paired with
// requests purely by arrival order.
//
// # Basic Usage
//
// Create an engine on a listen address, start QEMU pointed at it, and wait
// for it to attach:
//
//	engine, err := qtestprotocol.NewEngine(qtestprotocol.Unix, "/tmp/qtest.sock")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	// qemu-system-arm ... -qtest unix:/tmp/qtest.sock
//	if err := engine.AttachConnection(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	v, err := engine.ReadL(ctx, 0x40020010)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("GPIOA_IDR = %#08x\n", v)
//
// # IRQ Handling
//
// IRQ lines arrive on a separate channel and must be drained, otherwise the
// background reader blocks and responses stop arriving:
//
//	go func() {
//	    for irq := range engine.IRQs() {
//	        fmt.Printf("line %d %s\n", irq.Line, irq.State)
//	    }
//	}()
//
// # Command Types
//
// Constructor functions exist for every qtest request:
//
//   - Clock: NewClockStepCommand, NewClockSetCommand
//   - IRQ: NewIRQInterceptInCommand, NewIRQInterceptOutCommand, NewSetIRQInCommand
//   - Port I/O: NewPortInCommand, NewPortOutCommand
//   - MMIO: NewMemReadCommand, NewMemWriteCommand
//   - Bulk memory: NewReadCommand, NewWriteCommand, NewB64WriteCommand
//   - Passthrough: NewRawCommand
//
// # Parsing Commands
//
// To parse command text (e.g., from user input):
//
//	parser := qtestprotocol.NewCommandParser()
//	cmd, err := parser.Parse("readl 0x40020010")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := engine.Exec(ctx, cmd)
//
// # Thread Safety
//
// Engine methods may be called from multiple goroutines. Commands are
// serialized so that exactly one request is outstanding at a time.
package qtestprotocol
