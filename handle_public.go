package harddoom2

import (
	"io"
	"sync"

	"github.com/kbr-/harddoom2/internal/handle"
)

// Handle is a reference-counted buffer: a surface (if created via
// CreateSurface) or a generic buffer (if created via CreateBuffer).
// Binding it into a Context's slots or the device's currently-installed
// set adds further references; the underlying DMA memory is released
// once every reference is dropped.
//
// Handle also behaves like an open file descriptor on the buffer: Read
// and Write operate at an internal position advanced by each call and
// repositioned by Seek, mirroring the read/write/llseek file_operations
// the original driver installs on a buffer fd.
type Handle struct {
	inner *handle.Handle
	dev   *Device

	posMu sync.Mutex
	pos   int64
}

// Get adds a reference to the handle.
func (h *Handle) Get() {
	h.inner.Get()
}

// Put drops a reference, freeing the underlying buffer once the count
// reaches zero.
func (h *Handle) Put() {
	h.inner.Put()
}

// Size returns the buffer's size in bytes.
func (h *Handle) Size() int {
	return h.inner.Size()
}

// IsSurface reports whether this handle was created by CreateSurface.
func (h *Handle) IsSurface() bool {
	return h.inner.IsSurface()
}

// Width returns the surface width. Valid only on a surface handle.
func (h *Handle) Width() uint16 {
	return h.inner.Width()
}

// Height returns the surface height. Valid only on a surface handle.
func (h *Handle) Height() uint16 {
	return h.inner.Height()
}

// ReadAt waits for the device to have retired every command that could
// still be writing this buffer, then copies out of it at off. Commands
// submitted concurrently with the read are not waited for; the
// contract is best-effort consistency relative to the snapshot taken
// at entry, exactly as hd2_buff_read documents.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	target := h.inner.LastWrite()
	h.dev.fence.Wait(target)

	n, err := h.inner.Buffer().CopyToUser(p, int(off))
	if err != nil {
		return n, WrapError("Handle.ReadAt", err)
	}
	return n, nil
}

// WriteAt waits for the device to have retired every command that
// could still be reading this buffer, then copies into it at off.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	target := h.inner.LastUse()
	h.dev.fence.Wait(target)

	n, err := h.inner.Buffer().CopyFromUser(p, int(off))
	if err != nil {
		return n, WrapError("Handle.WriteAt", err)
	}
	return n, nil
}

// Read copies from the handle's current position, as hd2_buff_read
// does, and advances that position by the number of bytes copied.
func (h *Handle) Read(p []byte) (int, error) {
	h.posMu.Lock()
	off := h.pos
	h.posMu.Unlock()

	n, err := h.ReadAt(p, off)
	if n > 0 {
		h.posMu.Lock()
		h.pos = off + int64(n)
		h.posMu.Unlock()
	}
	return n, err
}

// Write copies to the handle's current position, as hd2_buff_write
// does, and advances that position by the number of bytes copied.
func (h *Handle) Write(p []byte) (int, error) {
	h.posMu.Lock()
	off := h.pos
	h.posMu.Unlock()

	n, err := h.WriteAt(p, off)
	if n > 0 {
		h.posMu.Lock()
		h.pos = off + int64(n)
		h.posMu.Unlock()
	}
	return n, err
}

// Seek repositions the handle per the three standard whences, clamped
// to [0, Size()], exactly as hd2_buff_llseek does. An out-of-range
// result is rejected with CodeInval and leaves the position unchanged.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	h.posMu.Lock()
	defer h.posMu.Unlock()

	newPos := offset
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		newPos += h.pos
	case io.SeekEnd:
		newPos += int64(h.Size())
	default:
		return h.pos, NewError("Handle.Seek", CodeInval, "invalid whence")
	}

	if newPos < 0 || newPos > int64(h.Size()) {
		return h.pos, NewError("Handle.Seek", CodeInval, "seek out of bounds")
	}

	h.pos = newPos
	return h.pos, nil
}

var _ io.ReadWriteSeeker = (*Handle)(nil)
