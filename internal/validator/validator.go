// Package validator implements the per-context validation rules: the
// role/dimension constraints checked when a context rebinds its seven
// buffer slots, and the per-command-type bounds checks applied to each
// command in a submitted batch before it is translated and written to
// the ring. Grounded on context.c's setup/validate_cmd; the original
// only implements FILL_RECT and DRAW_LINE, so the remaining five rule
// sets below are derived from the device's command semantics rather
// than copied from an oracle.
package validator

import (
	"github.com/kbr-/harddoom2/internal/constants"
	"github.com/kbr-/harddoom2/internal/handle"
	"github.com/kbr-/harddoom2/internal/uapi"
)

// Error is a validation failure, distinguishing the two error codes
// the caller needs to choose between (INVAL for most violations, the
// rest folded in as plain INVAL since the source never differentiates
// further at this layer).
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func fail(msg string) error { return &Error{Msg: msg} }

// ValidateSetup checks the seven-slot role and dimension constraints a
// context's bound buffer set must satisfy: destination/source slots
// must be surfaces (or unbound), the remaining five must be
// non-surfaces (or unbound), a bound destination and source surface
// must share dimensions, and the four auxiliary buffers must be sized
// to a multiple of their hardware unit.
func ValidateSetup(bufs [constants.NumUserBufs]*handle.Handle) error {
	for i := 0; i < 2; i++ {
		if h := bufs[i]; h != nil && !h.IsSurface() {
			return fail("validator: non-surface bound to a surface slot")
		}
	}
	for i := 2; i < constants.NumUserBufs; i++ {
		if h := bufs[i]; h != nil && h.IsSurface() {
			return fail("validator: surface bound to a non-surface slot")
		}
	}

	dst, src := bufs[constants.DstSurfaceBufIdx], bufs[constants.SrcSurfaceBufIdx]
	if dst != nil && src != nil && (dst.Width() != src.Width() || dst.Height() != src.Height()) {
		return fail("validator: destination and source surfaces differ in size")
	}

	if flat := bufs[constants.FlatBufIdx]; flat != nil && flat.Size()%4096 != 0 {
		return fail("validator: flat buffer size not a multiple of 4096")
	}
	if translation := bufs[constants.TranslationBufIdx]; translation != nil && translation.Size()%256 != 0 {
		return fail("validator: translation buffer size not a multiple of 256")
	}
	if colormap := bufs[constants.ColormapBufIdx]; colormap != nil && colormap.Size()%256 != 0 {
		return fail("validator: colormap buffer size not a multiple of 256")
	}
	if tranmap := bufs[constants.TranmapBufIdx]; tranmap != nil && tranmap.Size()%65536 != 0 {
		return fail("validator: tranmap buffer size not a multiple of 65536")
	}

	return nil
}

// Validate checks one decoded command against the currently bound
// buffer set. A bound destination surface is required for every
// command type; coordinates are checked as exclusive-upper-bound
// rectangles against its (width, height).
func Validate(bound [constants.NumUserBufs]*handle.Handle, cmd *uapi.Cmd) error {
	dst := bound[constants.DstSurfaceBufIdx]
	if dst == nil {
		return fail("validator: no destination surface bound")
	}
	dstW, dstH := dst.Width(), dst.Height()

	switch cmd.Type {
	case uapi.CmdTypeCopyRect:
		return validateCopyRect(bound, dstW, dstH, cmd.CopyRect)
	case uapi.CmdTypeFillRect:
		return validateFillRect(dstW, dstH, cmd.FillRect)
	case uapi.CmdTypeDrawLine:
		return validateDrawLine(dstW, dstH, cmd.DrawLine)
	case uapi.CmdTypeDrawBackground:
		return validateDrawBackground(bound, dstW, dstH, cmd.DrawBackground)
	case uapi.CmdTypeDrawColumn:
		return validateDrawColumn(bound, dstW, dstH, cmd.DrawColumn)
	case uapi.CmdTypeDrawSpan:
		return validateDrawSpan(bound, dstW, dstH, cmd.DrawSpan)
	case uapi.CmdTypeDrawFuzz:
		return validateDrawFuzz(bound, dstW, dstH, cmd.DrawFuzz)
	default:
		return fail("validator: unknown command type")
	}
}

func rectInBounds(x, y, w, h, boundW, boundH uint16) bool {
	return uint32(x)+uint32(w) <= uint32(boundW) && uint32(y)+uint32(h) <= uint32(boundH)
}

func rectsOverlap(aX, aY, aW, aH, bX, bY, bW, bH uint16) bool {
	if uint32(aX)+uint32(aW) <= uint32(bX) || uint32(bX)+uint32(bW) <= uint32(aX) {
		return false
	}
	if uint32(aY)+uint32(aH) <= uint32(bY) || uint32(bY)+uint32(bH) <= uint32(aY) {
		return false
	}
	return true
}

func validateCopyRect(bound [constants.NumUserBufs]*handle.Handle, dstW, dstH uint16, p *uapi.CopyRect) error {
	src := bound[constants.SrcSurfaceBufIdx]
	if src == nil {
		return fail("validator: copy_rect requires a bound source surface")
	}
	if !rectInBounds(p.PosDstX, p.PosDstY, p.Width, p.Height, dstW, dstH) {
		return fail("validator: copy_rect destination rectangle out of bounds")
	}
	if !rectInBounds(p.PosSrcX, p.PosSrcY, p.Width, p.Height, src.Width(), src.Height()) {
		return fail("validator: copy_rect source rectangle out of bounds")
	}
	if src == bound[constants.DstSurfaceBufIdx] &&
		rectsOverlap(p.PosDstX, p.PosDstY, p.Width, p.Height, p.PosSrcX, p.PosSrcY, p.Width, p.Height) {
		return fail("validator: copy_rect source and destination rectangles overlap")
	}
	return nil
}

func validateFillRect(dstW, dstH uint16, p *uapi.FillRect) error {
	if !rectInBounds(p.PosX, p.PosY, p.Width, p.Height, dstW, dstH) {
		return fail("validator: fill_rect out of bounds")
	}
	return nil
}

func validateDrawLine(dstW, dstH uint16, p *uapi.DrawLine) error {
	if p.PosAX >= dstW || p.PosAY >= dstH || p.PosBX >= dstW || p.PosBY >= dstH {
		return fail("validator: draw_line endpoint out of bounds")
	}
	return nil
}

func validateDrawBackground(bound [constants.NumUserBufs]*handle.Handle, dstW, dstH uint16, p *uapi.DrawBackground) error {
	flat := bound[constants.FlatBufIdx]
	if flat == nil {
		return fail("validator: draw_background requires a bound flat buffer")
	}
	if uint32(p.FlatIdx) >= uint32(flat.Size()/4096) {
		return fail("validator: draw_background flat index out of range")
	}
	if !rectInBounds(p.PosX, p.PosY, p.Width, p.Height, dstW, dstH) {
		return fail("validator: draw_background out of bounds")
	}
	return nil
}

func validateDrawColumn(bound [constants.NumUserBufs]*handle.Handle, dstW, dstH uint16, p *uapi.DrawColumn) error {
	texture := bound[constants.TextureBufIdx]
	if texture == nil {
		return fail("validator: draw_column requires a bound texture buffer")
	}
	if p.PosBY < p.PosAY {
		return fail("validator: draw_column end above start")
	}
	if p.PosX >= dstW || p.PosAY >= dstH || p.PosBY >= dstH {
		return fail("validator: draw_column out of bounds")
	}
	if err := checkColormapTranslationTranmap(bound, p.Flags, p.ColormapIdx, p.TranslationIdx); err != nil {
		return err
	}
	return nil
}

func validateDrawSpan(bound [constants.NumUserBufs]*handle.Handle, dstW, dstH uint16, p *uapi.DrawSpan) error {
	flat := bound[constants.FlatBufIdx]
	if flat == nil {
		return fail("validator: draw_span requires a bound flat buffer")
	}
	if p.PosBX < p.PosAX {
		return fail("validator: draw_span end before start")
	}
	if p.PosY >= dstH || p.PosAX >= dstW || p.PosBX >= dstW {
		return fail("validator: draw_span out of bounds")
	}
	if uint32(p.FlatIdx) >= uint32(flat.Size()/4096) {
		return fail("validator: draw_span flat index out of range")
	}
	if err := checkColormapTranslationTranmap(bound, p.Flags, p.ColormapIdx, p.TranslationIdx); err != nil {
		return err
	}
	return nil
}

func validateDrawFuzz(bound [constants.NumUserBufs]*handle.Handle, dstW, dstH uint16, p *uapi.DrawFuzz) error {
	colormap := bound[constants.ColormapBufIdx]
	if colormap == nil {
		return fail("validator: draw_fuzz requires a bound colormap buffer")
	}
	if !(p.FuzzStart <= p.PosAY && p.PosAY <= p.PosBY && p.PosBY <= p.FuzzEnd) {
		return fail("validator: draw_fuzz fuzz range inconsistent with column extent")
	}
	if p.FuzzPos > 55 {
		return fail("validator: draw_fuzz fuzz position out of range")
	}
	if p.PosX >= dstW || p.PosBY >= dstH {
		return fail("validator: draw_fuzz out of bounds")
	}
	if uint32(p.ColormapIdx) >= uint32(colormap.Size()/256) {
		return fail("validator: draw_fuzz colormap index out of range")
	}
	return nil
}

// checkColormapTranslationTranmap applies the shared flag-consistency
// rule used by DRAW_COLUMN and DRAW_SPAN: each of the optional
// translate/colormap/tranmap flags requires the matching buffer to be
// bound, and requires the relevant index to fall within that buffer's
// size-derived table.
func checkColormapTranslationTranmap(bound [constants.NumUserBufs]*handle.Handle, flags uint8, colormapIdx, translationIdx uint16) error {
	if flags&uapi.FlagColormap != 0 {
		colormap := bound[constants.ColormapBufIdx]
		if colormap == nil {
			return fail("validator: colormap flag set without a bound colormap buffer")
		}
		if uint32(colormapIdx) >= uint32(colormap.Size()/256) {
			return fail("validator: colormap index out of range")
		}
	}
	if flags&uapi.FlagTranslate != 0 {
		translation := bound[constants.TranslationBufIdx]
		if translation == nil {
			return fail("validator: translate flag set without a bound translation buffer")
		}
		if uint32(translationIdx) >= uint32(translation.Size()/256) {
			return fail("validator: translation index out of range")
		}
	}
	if flags&uapi.FlagTranmap != 0 {
		if bound[constants.TranmapBufIdx] == nil {
			return fail("validator: tranmap flag set without a bound tranmap buffer")
		}
	}
	return nil
}
