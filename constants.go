package harddoom2

import "github.com/kbr-/harddoom2/internal/constants"

// Re-exported tunables for the public API.
const (
	PageSize           = constants.PageSize
	MaxBufferPages     = constants.MaxBufferPages
	MaxBufferSize      = constants.MaxBufferSize
	PingPeriod         = constants.PingPeriod
	NumUserBufs        = constants.NumUserBufs
	DevicesLimit       = constants.DevicesLimit
	MaxSurfaceDim      = constants.MaxSurfaceDim
	MinSurfaceWidth    = constants.MinSurfaceWidth
	SurfaceWidthAlign  = constants.SurfaceWidthAlign
	MaxWriteBatchBytes = constants.MaxWriteBatchBytes
	CmdWordBytes       = constants.CmdWordBytes
)

// Buffer role slot indices, for callers building a Setup call.
const (
	DstSurfaceBufIdx  = constants.DstSurfaceBufIdx
	SrcSurfaceBufIdx  = constants.SrcSurfaceBufIdx
	TextureBufIdx     = constants.TextureBufIdx
	FlatBufIdx        = constants.FlatBufIdx
	ColormapBufIdx    = constants.ColormapBufIdx
	TranslationBufIdx = constants.TranslationBufIdx
	TranmapBufIdx     = constants.TranmapBufIdx
)

// DefaultRingSlots is the command ring length used by Open when
// DeviceParams.RingSlots is left zero: 128Ki slots (4MiB at 32 bytes
// each), matching the original driver's fixed command buffer size.
const DefaultRingSlots = MaxBufferSize / CmdWordBytes
