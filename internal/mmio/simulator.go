package mmio

import (
	"sync"

	"github.com/kbr-/harddoom2/internal/regs"
)

// Simulator is a software model of the HardDoom II register file. It
// tracks exactly the state the host-side driver logic needs to be
// exercised under test: enable/reset/interrupt-mask bits, the fence
// counter/wait registers, and the command ring's read/write indices.
// It never executes commands — rendering is the external collaborator
// this module does not implement — but it reproduces the device's
// observable register behavior closely enough to drive the ring,
// fence, and back-pressure logic exactly as a real ASIC would.
type Simulator struct {
	mu sync.Mutex

	enable     uint32
	intr       uint32
	intrEnable uint32
	fenceCnt   uint32
	fenceWait  uint32
	cmdPT      uint32
	cmdSize    uint32
	cmdReadIdx uint32
	cmdWriteIdx uint32

	microcodeLoads int

	handler func(active uint32)
}

// NewSimulator returns a Simulator in the power-off state; Reset (via
// ring.Device.Reset) brings it up exactly as reset_device does on real
// hardware.
func NewSimulator() *Simulator {
	return &Simulator{}
}

func (s *Simulator) Read32(offset uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch offset {
	case regs.Enable:
		return s.enable
	case regs.Intr:
		return s.intr
	case regs.IntrEnable:
		return s.intrEnable
	case regs.FenceCounter:
		return s.fenceCnt
	case regs.FenceWait:
		return s.fenceWait
	case regs.CmdPT:
		return s.cmdPT
	case regs.CmdSize:
		return s.cmdSize
	case regs.CmdReadIdx:
		return s.cmdReadIdx
	case regs.CmdWriteIdx:
		return s.cmdWriteIdx
	default:
		return 0
	}
}

func (s *Simulator) Write32(offset uint32, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch offset {
	case regs.Enable:
		s.enable = value
	case regs.Reset: // aliases regs.Status offset, write-only semantics
		// Resetting functional units has no host-observable effect in
		// this model beyond being accepted.
	case regs.Intr:
		// Write-1-to-clear: callers ack handled bits.
		s.intr &^= value
	case regs.IntrEnable:
		s.intrEnable = value
	case regs.FenceWait:
		s.fenceWait = value
	case regs.CmdPT:
		s.cmdPT = value
	case regs.CmdSize:
		s.cmdSize = value
	case regs.CmdReadIdx:
		s.cmdReadIdx = value
	case regs.CmdWriteIdx:
		s.cmdWriteIdx = value
	case regs.FenceCounter:
		s.fenceCnt = value
	}
}

func (s *Simulator) LoadMicrocode(code []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.microcodeLoads++
}

// MicrocodeLoads reports how many times LoadMicrocode has been called,
// for tests asserting that Reset re-uploads the front-end program.
func (s *Simulator) MicrocodeLoads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.microcodeLoads
}

func (s *Simulator) SetInterruptHandler(handler func(active uint32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *Simulator) Close() error {
	return nil
}

// raise sets bits in INTR and, for any bit currently enabled, invokes
// the installed handler synchronously — standing in for the PCI
// interrupt line firing and the kernel dispatching to the driver's IRQ
// handler.
func (s *Simulator) raise(bits uint32) {
	s.mu.Lock()
	s.intr |= bits
	handler := s.handler
	enabled := s.intrEnable
	s.mu.Unlock()

	if handler == nil {
		return
	}
	if active := bits & enabled; active != 0 {
		handler(active)
	}
}

// ConsumeCommands advances CMD_READ_IDX by n slots (mod the configured
// ring length), simulating the device executing commands already
// written. If any consumed slot carried PING_ASYNC, the caller should
// follow with RaisePongAsync; tests drive the two separately so they
// can exercise the back-pressure protocol's ack/enable/wait sequence
// deterministically.
func (s *Simulator) ConsumeCommands(n uint32) {
	s.mu.Lock()
	size := s.cmdSize
	if size == 0 {
		size = 1
	}
	s.cmdReadIdx = (s.cmdReadIdx + n) % size
	s.mu.Unlock()
}

// RaisePongAsync simulates the device reporting write-index progress
// (a PING_ASYNC-flagged command reached the front end).
func (s *Simulator) RaisePongAsync() {
	s.raise(regs.IntrPongAsync)
}

// CompleteFence advances FENCE_COUNTER to cnt and raises the FENCE
// interrupt, simulating a FENCE-flagged command retiring.
func (s *Simulator) CompleteFence(cnt uint32) {
	s.mu.Lock()
	s.fenceCnt = cnt
	s.mu.Unlock()
	s.raise(regs.IntrFence)
}

var _ Registers = (*Simulator)(nil)
