// Package mmio abstracts the HardDoom II register file behind a small
// interface: one implementation performs real volatile 32-bit
// loads/stores against a mapped PCI BAR, another is a software
// model used by tests and by callers with no accelerator attached.
package mmio

// Registers is the device's register-level surface: 32-bit reads and
// writes against BAR0 offsets (internal/regs), plus the microcode
// upload path exercised once at reset.
//
// Interrupts have no analogue in a plain register read/write — a real
// PCI interrupt line is an asynchronous hardware event. Callers
// register a handler with SetInterruptHandler; an implementation
// invokes it whenever the simulated or real device would assert the
// line. The handler is passed the active bits and is responsible for
// acknowledging them by writing them back to HARDDOOM2_INTR, exactly
// as the original IRQ handler does.
type Registers interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)

	// LoadMicrocode uploads the front-end microcode image through the
	// FE_CODE_ADDR/FE_CODE_WINDOW register pair, one word at a time.
	LoadMicrocode(code []uint32)

	// SetInterruptHandler installs the callback invoked with the set of
	// newly-active interrupt bits whenever the device raises its
	// interrupt line. Only one handler is supported, matching the
	// driver's single per-device IRQ registration.
	SetInterruptHandler(handler func(active uint32))

	// Close releases any OS resources (mapped memory, file handles)
	// held by the implementation.
	Close() error
}
