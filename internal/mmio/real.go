package mmio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// IORegisters maps a PCI BAR resource file (as exposed by Linux under
// /sys/bus/pci/devices/.../resource0) and performs volatile 32-bit
// loads/stores against it. This is the production path; it is never
// exercised by this module's own tests, which run against Simulator
// instead, since real register access needs a mapped PCI BAR only
// present on a machine with the card installed.
type IORegisters struct {
	mu      sync.Mutex
	file    *os.File
	mapping []byte

	handler func(active uint32)
}

// OpenBAR mmaps size bytes of the given PCI resource file.
func OpenBAR(path string, size int) (*IORegisters, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: open %s: %w", path, err)
	}

	mapping, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmio: mmap %s: %w", path, err)
	}

	return &IORegisters{file: f, mapping: mapping}, nil
}

func (r *IORegisters) Read32(offset uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return binary.LittleEndian.Uint32(r.mapping[offset : offset+4])
}

func (r *IORegisters) Write32(offset uint32, value uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	binary.LittleEndian.PutUint32(r.mapping[offset:offset+4], value)
}

func (r *IORegisters) LoadMicrocode(code []uint32) {
	const feCodeAddr = 0x0100
	const feCodeWindow = 0x0104
	r.Write32(feCodeAddr, 0)
	for _, word := range code {
		r.Write32(feCodeWindow, word)
	}
}

// SetInterruptHandler records the callback. A real deployment would
// wire this to a kernel interrupt-forwarding mechanism (e.g. VFIO
// eventfds); that plumbing is outside this module's scope, so the
// handler is stored but never invoked by IORegisters itself.
func (r *IORegisters) SetInterruptHandler(handler func(active uint32)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
}

func (r *IORegisters) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapping != nil {
		_ = unix.Munmap(r.mapping)
		r.mapping = nil
	}
	return r.file.Close()
}

var _ Registers = (*IORegisters)(nil)
