// Package regs transcribes the HardDoom II register and command word
// layout from the device's register-level specification: register
// offsets, interrupt bits, PTE encoding, and the eight-word command
// slot encoders used by the ring. Nothing here touches an actual bus;
// internal/mmio is the collaborator that turns these offsets into
// real or simulated reads/writes.
package regs

// Register byte offsets within BAR0.
const (
	Enable        = 0x0000
	Status        = 0x0004
	Reset         = 0x0004
	Intr          = 0x0008
	IntrEnable    = 0x000c
	FenceCounter  = 0x0010
	FenceWait     = 0x0014
	CmdPT         = 0x0060
	CmdSize       = 0x0064
	CmdReadIdx    = 0x0068
	CmdWriteIdx   = 0x006c
	FECodeAddr    = 0x0100
	FECodeWindow  = 0x0104
)

// Enable bits.
const (
	EnableCmdFetch = 0x00000001
	EnableCmdSend  = 0x00000002
	EnableFE       = 0x00000004
	EnableXY       = 0x00000008
	EnableTex      = 0x00000010
	EnableFlat     = 0x00000020
	EnableFuzz     = 0x00000040
	EnableSR       = 0x00000080
	EnableOG       = 0x00000100
	EnableSW       = 0x00000200
	EnableAll      = 0x000003ff
)

// ResetAll resets every functional unit and FIFO.
const ResetAll = 0xff7f7ffc

// Interrupt bits (HARDDOOM2_INTR_*).
const (
	IntrFence               = 0x00000001
	IntrPongSync            = 0x00000002
	IntrPongAsync           = 0x00000004
	IntrFEError             = 0x00000010
	IntrCmdOverflow         = 0x00000020
	IntrSurfDstOverflow     = 0x00000040
	IntrSurfSrcOverflow     = 0x00000080
	IntrPageFaultCmd        = 0x00000100
	IntrPageFaultSurfDst    = 0x00000200
	IntrPageFaultSurfSrc    = 0x00000400
	IntrPageFaultTexture    = 0x00000800
	IntrPageFaultFlat       = 0x00001000
	IntrPageFaultTranslation = 0x00002000
	IntrPageFaultColormap   = 0x00004000
	IntrPageFaultTranmap    = 0x00008000
	IntrMask                = 0x0000fff7
)

// PTE bits/shifts (HARDDOOM2_PTE_*).
const (
	PTEValid    = 0x00000001
	PTEWritable = 0x00000002
	PTEPhysMask = 0xfffffff0
	PTEPhysShift = 4
)

// Device command types, as written into word 0 of a ring slot
// (HARDDOOM2_CMD_TYPE_*). Distinct from the doomdev2_cmd_type enum: the
// device additionally has a SETUP type never exposed to user commands.
const (
	CmdTypeCopyRect       = 0x0
	CmdTypeFillRect       = 0x1
	CmdTypeDrawLine       = 0x2
	CmdTypeDrawBackground = 0x3
	CmdTypeDrawColumn     = 0x4
	CmdTypeDrawFuzz       = 0x5
	CmdTypeDrawSpan       = 0x6
	CmdTypeSetup          = 0x7
	CmdTypeMask           = 0xf
)

// Command flags, ORed into word 0 alongside the type.
const (
	CmdFlagInterlock   = 0x00000010
	CmdFlagPingAsync   = 0x00000020
	CmdFlagPingSync    = 0x00000040
	CmdFlagFence       = 0x00000080
	CmdFlagTranslation = 0x00000100
	CmdFlagColormap    = 0x00000200
	CmdFlagTranmap     = 0x00000400

	CmdFlagSetupSurfDst     = 0x00000200
	CmdFlagSetupSurfSrc     = 0x00000400
	CmdFlagSetupTexture     = 0x00000800
	CmdFlagSetupFlat        = 0x00001000
	CmdFlagSetupTranslation = 0x00002000
	CmdFlagSetupColormap    = 0x00004000
	CmdFlagSetupTranmap     = 0x00008000
)

// PTE builds a page-table entry for a page at the given physical
// address: bits 0-1 (valid, writable) set, bits 2-3 clear, bits 4-31
// equal to bits 12-39 of the physical address.
func PTE(physAddr uint64) uint32 {
	return uint32((physAddr>>12)<<4) | PTEValid | PTEWritable
}

// Cmd is one eight-word (32-byte) device command ring slot.
type Cmd [8]uint32

// W0 packs the command type and flag bits into word 0.
func W0(cmdType uint32, flags uint32) uint32 {
	return (cmdType & CmdTypeMask) | flags
}

// W0Setup packs the SETUP command's word 0: type, flags, and the
// destination/source surface widths (in units of 64 pixels, shifted
// into bits 16-21 / 24-29).
func W0Setup(flags uint32, dstWidth, srcWidth uint16) uint32 {
	return CmdTypeSetup | flags | (uint32(dstWidth)>>6)<<16 | (uint32(srcWidth)>>6)<<24
}

// W1 packs the translation/colormap table indices used by DRAW_COLUMN
// and DRAW_SPAN.
func W1(translationIdx, colormapIdx uint16) uint32 {
	return uint32(translationIdx) | uint32(colormapIdx)<<16
}

// W2 packs an (x, y, flatIdx) position used by commands that also carry
// a flat-texture index (DRAW_BACKGROUND, DRAW_SPAN).
func W2(x, y, flatIdx uint16) uint32 {
	return uint32(x) | uint32(y)<<11 | uint32(flatIdx)<<22
}

// W3 packs a plain (x, y) position.
func W3(x, y uint16) uint32 {
	return uint32(x) | uint32(y)<<11
}

// W6A packs (width, height, fillColor) used by COPY_RECT/FILL_RECT/
// DRAW_LINE/DRAW_BACKGROUND.
func W6A(width, height uint16, fillColor uint8) uint32 {
	return uint32(width) | uint32(height)<<12 | uint32(fillColor)<<24
}

// W6B packs a texture offset (DRAW_COLUMN).
func W6B(textureOffset uint32) uint32 {
	return textureOffset & 0x3fffff
}

// W6C packs (fuzzStart, fuzzEnd, fuzzPos) used by DRAW_FUZZ.
func W6C(fuzzStart, fuzzEnd uint16, fuzzPos uint8) uint32 {
	return uint32(fuzzStart) | uint32(fuzzEnd)<<12 | uint32(fuzzPos)<<24
}

// W7B packs (textureLimit, textureHeight) used by DRAW_COLUMN.
func W7B(textureLimit, textureHeight uint16) uint32 {
	return uint32(textureLimit) | uint32(textureHeight)<<16
}
