package uapi

import "encoding/binary"

// Decode parses one 32-byte wire command into its typed form. The
// command crosses a submission-path boundary, so it is decoded
// explicitly field by field rather than reinterpreted via unsafe casts.
func Decode(raw []byte) (*Cmd, error) {
	if len(raw) != CmdSize {
		return nil, ErrUnknownCmdType(-1)
	}

	le := binary.LittleEndian
	typ := int(raw[0])

	switch typ {
	case CmdTypeCopyRect:
		return &Cmd{Type: typ, CopyRect: &CopyRect{
			Width:   le.Uint16(raw[4:6]),
			Height:  le.Uint16(raw[6:8]),
			PosDstX: le.Uint16(raw[8:10]),
			PosDstY: le.Uint16(raw[10:12]),
			PosSrcX: le.Uint16(raw[12:14]),
			PosSrcY: le.Uint16(raw[14:16]),
		}}, nil
	case CmdTypeFillRect:
		return &Cmd{Type: typ, FillRect: &FillRect{
			FillColor: raw[1],
			Width:     le.Uint16(raw[4:6]),
			Height:    le.Uint16(raw[6:8]),
			PosX:      le.Uint16(raw[8:10]),
			PosY:      le.Uint16(raw[10:12]),
		}}, nil
	case CmdTypeDrawLine:
		return &Cmd{Type: typ, DrawLine: &DrawLine{
			FillColor: raw[1],
			PosAX:     le.Uint16(raw[4:6]),
			PosAY:     le.Uint16(raw[6:8]),
			PosBX:     le.Uint16(raw[8:10]),
			PosBY:     le.Uint16(raw[10:12]),
		}}, nil
	case CmdTypeDrawBackground:
		return &Cmd{Type: typ, DrawBackground: &DrawBackground{
			FlatIdx: le.Uint16(raw[2:4]),
			Width:   le.Uint16(raw[4:6]),
			Height:  le.Uint16(raw[6:8]),
			PosX:    le.Uint16(raw[8:10]),
			PosY:    le.Uint16(raw[10:12]),
		}}, nil
	case CmdTypeDrawColumn:
		return &Cmd{Type: typ, DrawColumn: &DrawColumn{
			Flags:          raw[1],
			PosX:           le.Uint16(raw[2:4]),
			PosAY:          le.Uint16(raw[4:6]),
			PosBY:          le.Uint16(raw[6:8]),
			ColormapIdx:    le.Uint16(raw[8:10]),
			TranslationIdx: le.Uint16(raw[10:12]),
			TextureHeight:  le.Uint16(raw[12:14]),
			TextureOffset:  le.Uint32(raw[16:20]),
			UStart:         le.Uint32(raw[20:24]),
			UStep:          le.Uint32(raw[24:28]),
		}}, nil
	case CmdTypeDrawSpan:
		return &Cmd{Type: typ, DrawSpan: &DrawSpan{
			Flags:          raw[1],
			PosY:           le.Uint16(raw[2:4]),
			PosAX:          le.Uint16(raw[4:6]),
			PosBX:          le.Uint16(raw[6:8]),
			ColormapIdx:    le.Uint16(raw[8:10]),
			TranslationIdx: le.Uint16(raw[10:12]),
			FlatIdx:        le.Uint16(raw[12:14]),
			UStart:         le.Uint32(raw[16:20]),
			VStart:         le.Uint32(raw[20:24]),
			UStep:          le.Uint32(raw[24:28]),
			VStep:          le.Uint32(raw[28:32]),
		}}, nil
	case CmdTypeDrawFuzz:
		return &Cmd{Type: typ, DrawFuzz: &DrawFuzz{
			FuzzPos:     raw[1],
			PosX:        le.Uint16(raw[2:4]),
			PosAY:       le.Uint16(raw[4:6]),
			PosBY:       le.Uint16(raw[6:8]),
			FuzzStart:   le.Uint16(raw[8:10]),
			FuzzEnd:     le.Uint16(raw[10:12]),
			ColormapIdx: le.Uint16(raw[12:14]),
		}}, nil
	default:
		return nil, ErrUnknownCmdType(typ)
	}
}

// Encode writes cmd back to its 32-byte wire form. Used by tests to
// build command batches without hand-assembling byte slices.
func (c *Cmd) Encode() []byte {
	buf := make([]byte, CmdSize)
	le := binary.LittleEndian
	buf[0] = byte(c.Type)

	switch c.Type {
	case CmdTypeCopyRect:
		cr := c.CopyRect
		le.PutUint16(buf[4:6], cr.Width)
		le.PutUint16(buf[6:8], cr.Height)
		le.PutUint16(buf[8:10], cr.PosDstX)
		le.PutUint16(buf[10:12], cr.PosDstY)
		le.PutUint16(buf[12:14], cr.PosSrcX)
		le.PutUint16(buf[14:16], cr.PosSrcY)
	case CmdTypeFillRect:
		fr := c.FillRect
		buf[1] = fr.FillColor
		le.PutUint16(buf[4:6], fr.Width)
		le.PutUint16(buf[6:8], fr.Height)
		le.PutUint16(buf[8:10], fr.PosX)
		le.PutUint16(buf[10:12], fr.PosY)
	case CmdTypeDrawLine:
		dl := c.DrawLine
		buf[1] = dl.FillColor
		le.PutUint16(buf[4:6], dl.PosAX)
		le.PutUint16(buf[6:8], dl.PosAY)
		le.PutUint16(buf[8:10], dl.PosBX)
		le.PutUint16(buf[10:12], dl.PosBY)
	case CmdTypeDrawBackground:
		db := c.DrawBackground
		le.PutUint16(buf[2:4], db.FlatIdx)
		le.PutUint16(buf[4:6], db.Width)
		le.PutUint16(buf[6:8], db.Height)
		le.PutUint16(buf[8:10], db.PosX)
		le.PutUint16(buf[10:12], db.PosY)
	case CmdTypeDrawColumn:
		dc := c.DrawColumn
		buf[1] = dc.Flags
		le.PutUint16(buf[2:4], dc.PosX)
		le.PutUint16(buf[4:6], dc.PosAY)
		le.PutUint16(buf[6:8], dc.PosBY)
		le.PutUint16(buf[8:10], dc.ColormapIdx)
		le.PutUint16(buf[10:12], dc.TranslationIdx)
		le.PutUint16(buf[12:14], dc.TextureHeight)
		le.PutUint32(buf[16:20], dc.TextureOffset)
		le.PutUint32(buf[20:24], dc.UStart)
		le.PutUint32(buf[24:28], dc.UStep)
	case CmdTypeDrawSpan:
		ds := c.DrawSpan
		buf[1] = ds.Flags
		le.PutUint16(buf[2:4], ds.PosY)
		le.PutUint16(buf[4:6], ds.PosAX)
		le.PutUint16(buf[6:8], ds.PosBX)
		le.PutUint16(buf[8:10], ds.ColormapIdx)
		le.PutUint16(buf[10:12], ds.TranslationIdx)
		le.PutUint16(buf[12:14], ds.FlatIdx)
		le.PutUint32(buf[16:20], ds.UStart)
		le.PutUint32(buf[20:24], ds.VStart)
		le.PutUint32(buf[24:28], ds.UStep)
		le.PutUint32(buf[28:32], ds.VStep)
	case CmdTypeDrawFuzz:
		df := c.DrawFuzz
		buf[1] = df.FuzzPos
		le.PutUint16(buf[2:4], df.PosX)
		le.PutUint16(buf[4:6], df.PosAY)
		le.PutUint16(buf[6:8], df.PosBY)
		le.PutUint16(buf[8:10], df.FuzzStart)
		le.PutUint16(buf[10:12], df.FuzzEnd)
		le.PutUint16(buf[12:14], df.ColormapIdx)
	}

	return buf
}
