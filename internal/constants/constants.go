// Package constants holds the device-wide tunables shared by every
// internal package. Values are transcribed from the HardDoom II register
// and command ABI; none of them are configurable at runtime.
package constants

// PageSize is the size in bytes of a single DMA page and of the page
// table page that addresses it.
const PageSize = 4096

// MaxBufferPages bounds the size of any single DMA buffer (command ring,
// surface, or generic buffer) to 1024 pages (4MiB).
const MaxBufferPages = 1024

// MaxBufferSize is the largest buffer size accepted by CreateSurface or
// CreateBuffer.
const MaxBufferSize = MaxBufferPages * PageSize

// CmdSendBytes is the size in bytes of one device command ring slot
// (eight 32-bit words).
const CmdSendBytes = 8 * 4

// CmdBufLen is the number of ring slots that fit in a MaxBufferSize
// command buffer (128K slots).
const CmdBufLen = MaxBufferSize / CmdSendBytes

// PingPeriod is the ring-slot interval at which the PING_ASYNC flag is
// set, so the device periodically reports write-index progress even
// when the host never blocks on back-pressure.
const PingPeriod = 2048

// NumUserBufs is the number of buffer-handle roles a context can bind:
// destination surface, source surface, texture, flat, colormap,
// translation, tranmap — in that slot order.
const NumUserBufs = 7

const (
	DstSurfaceBufIdx = iota
	SrcSurfaceBufIdx
	TextureBufIdx
	FlatBufIdx
	ColormapBufIdx
	TranslationBufIdx
	TranmapBufIdx
)

// DevicesLimit is the size of the global device table: a fixed array
// indexed by device number.
const DevicesLimit = 256

// MaxSurfaceDim is the largest width or height accepted by CreateSurface.
const MaxSurfaceDim = 2048

// MinSurfaceWidth and SurfaceWidthAlign constrain surface width: it must
// be at least 64 and a multiple of 64 (one cache line of pixels).
const (
	MinSurfaceWidth   = 64
	SurfaceWidthAlign = 64
)

// MaxWriteBatchBytes is the largest single Submit call will accept
// before truncating to a whole number of 32-byte commands, mirroring
// context_write's 128KiB cap on the user-supplied byte count.
const MaxWriteBatchBytes = 131072

// CmdWordBytes is the size in bytes of one doomdev2_cmd entry.
const CmdWordBytes = 32
