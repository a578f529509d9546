// Package dmabuf implements the page-tabled DMA buffer that backs
// every surface, generic buffer, and the device command ring itself.
// It is grounded on dma_buffer.c/dma_buffer.h, adapted from pointer
// arithmetic over dma_alloc_coherent pages to plain Go byte slices —
// there is no real IOMMU to program in this host-only module, but the
// page/page-table bookkeeping and the gather-copy semantics are kept
// exactly as the original.
package dmabuf

import (
	"github.com/pkg/errors"

	"github.com/kbr-/harddoom2/internal/constants"
	"github.com/kbr-/harddoom2/internal/regs"
)

// simAddrBase is an arbitrary non-zero base used to synthesize
// plausible-looking "device addresses" for allocated pages, since this
// module has no real IOMMU/DMA-capable allocator to hand out addresses
// from. Only the low bits (alignment) and page-table encoding matter
// to any code exercising a Buffer.
const simAddrBase = 0x1_0000_0000

var nextSimAddr uint64 = simAddrBase

// Sentinel errors returned by CopyFromUser/CopyToUser, matching the
// three failure shapes hd2_buff_write/hd2_buff_read report by errno:
// a negative offset is always EINVAL, an offset at or past the
// buffer's end is ENOSPC on the write side (the read side treats it as
// EOF instead, never returning ErrOffsetBeyondBuffer), and a count that
// clamps to zero is EINVAL. Callers classify these with errors.Is
// rather than matching on Error() text.
var (
	ErrNegativeOffset     = errors.New("dmabuf: negative offset")
	ErrOffsetBeyondBuffer = errors.New("dmabuf: offset beyond buffer")
	ErrZeroLengthCopy     = errors.New("dmabuf: zero-length copy")
)

// Buffer is a DMA-capable, page-tabled memory region: up to
// constants.MaxBufferPages pages of constants.PageSize bytes, plus one
// page-table page whose entries are encoded per HARDDOOM2_PTE_*.
type Buffer struct {
	size       int
	pages      [][]byte
	pageAddrs  []uint64
	pageTable  []byte // one constants.PageSize page of packed PTEs
	pageTableAddr uint64
}

// New allocates a buffer of the given size, rounding up to a whole
// number of pages. It mirrors init_dma_buff's page-table population:
// each entry is ((pageAddr>>12)<<4)|valid|writable.
func New(size int) (*Buffer, error) {
	if size <= 0 || size > constants.MaxBufferSize {
		return nil, errors.Errorf("dmabuf: size %d out of range (0, %d]", size, constants.MaxBufferSize)
	}

	numPages := (size + constants.PageSize - 1) / constants.PageSize

	b := &Buffer{
		size:      size,
		pages:     make([][]byte, numPages),
		pageAddrs: make([]uint64, numPages),
		pageTable: make([]byte, constants.PageSize),
	}

	b.pageTableAddr = allocSimAddr()
	for i := 0; i < numPages; i++ {
		b.pages[i] = make([]byte, constants.PageSize)
		addr := allocSimAddr()
		b.pageAddrs[i] = addr

		pte := regs.PTE(addr)
		putLE32(b.pageTable[i*4:], pte)
	}

	return b, nil
}

func allocSimAddr() uint64 {
	addr := nextSimAddr
	nextSimAddr += constants.PageSize
	return addr
}

func putLE32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

// Size returns the buffer's usable size in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// PageTableAddress returns the device-visible address of the page
// table describing this buffer. The address is returned unshifted, as
// get_page_table does; a caller programming it into the device shifts
// it right by 8 itself.
func (b *Buffer) PageTableAddress() uint64 {
	return b.pageTableAddr
}

// numPages returns how many data pages back this buffer.
func (b *Buffer) numPages() int {
	return (b.size + constants.PageSize - 1) / constants.PageSize
}

// CopyIn gathers src into the buffer at dstPos, across page boundaries,
// mirroring write_dma_buff. The caller must ensure dstPos+len(src) <=
// Size(); violating this is a programmer error, not a runtime one
// (BUG_ON in the original), so it panics.
func (b *Buffer) CopyIn(src []byte, dstPos int) {
	if dstPos < 0 || dstPos+len(src) > b.size {
		panic("dmabuf: CopyIn out of bounds")
	}
	b.walk(dstPos, len(src), func(page []byte, n int) {
		copy(page, src[:n])
		src = src[n:]
	})
}

// CopyOut gathers from the buffer at srcPos into dst, mirroring a
// kernel-internal read (no partial-progress contract needed since
// there is no user-copy fault path).
func (b *Buffer) CopyOut(dst []byte, srcPos int) {
	if srcPos < 0 || srcPos+len(dst) > b.size {
		panic("dmabuf: CopyOut out of bounds")
	}
	b.walk(srcPos, len(dst), func(page []byte, n int) {
		copy(dst[:n], page)
		dst = dst[n:]
	})
}

// CopyFromUser performs a partial-progress copy, as write_dma_buff_user
// does: it always makes as much progress as it can before a short
// count, here modeled by never failing (there is no real user/kernel
// boundary to fault across) but still returning the number of bytes
// transferred so callers built for the short-count contract exercise
// the same control flow. off must be within [0, Size()); count is
// clamped to the space remaining.
func (b *Buffer) CopyFromUser(src []byte, off int) (int, error) {
	if off < 0 {
		return 0, ErrNegativeOffset
	}
	if off >= b.size {
		return 0, ErrOffsetBeyondBuffer
	}
	count := len(src)
	if space := b.size - off; count > space {
		count = space
	}
	if count == 0 {
		return 0, ErrZeroLengthCopy
	}
	b.CopyIn(src[:count], off)
	return count, nil
}

// CopyToUser is the symmetric read-side partial-progress copy.
func (b *Buffer) CopyToUser(dst []byte, off int) (int, error) {
	if off < 0 {
		return 0, ErrNegativeOffset
	}
	if off >= b.size {
		return 0, nil
	}
	count := len(dst)
	if space := b.size - off; count > space {
		count = space
	}
	if count == 0 {
		return 0, ErrZeroLengthCopy
	}
	b.CopyOut(dst[:count], off)
	return count, nil
}

// walk splits a [pos, pos+n) range into per-page slices and invokes fn
// once per page touched, in order.
func (b *Buffer) walk(pos, n int, fn func(page []byte, n int)) {
	page := pos / constants.PageSize
	pageOff := pos % constants.PageSize

	for n > 0 {
		space := constants.PageSize - pageOff
		if space > n {
			space = n
		}
		fn(b.pages[page][pageOff:pageOff+space], space)
		n -= space
		page++
		pageOff = 0
	}
}

// Free releases the buffer. There is nothing to do on the host beyond
// dropping references, since pages are plain Go memory, but the method
// is kept to mirror free_dma_buff's call site in buffer teardown.
func (b *Buffer) Free() {
	b.pages = nil
	b.pageTable = nil
}
