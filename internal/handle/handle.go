// Package handle implements the refcounted buffer handle shared across
// an opened file descriptor, a context's bound-buffer slots, and the
// device's currently-installed buffer set. It is grounded on
// hd2_buffer.c: a kref-style refcount plus two independently-locked
// fence counters and an interlock flag.
package handle

import (
	"sync"
	"sync/atomic"

	"github.com/kbr-/harddoom2/internal/counter"
	"github.com/kbr-/harddoom2/internal/dmabuf"
)

// Handle wraps a DMA buffer with the bookkeeping the device core and
// validator need: reference count, last-use/last-write fences, and the
// interlock flag used to order COPY_RECT against a surface's own
// drawing commands.
type Handle struct {
	buf *dmabuf.Buffer

	refcount int32

	lastUseMu sync.Mutex
	lastUse   counter.Counter

	lastWriteMu sync.Mutex
	lastWrite   counter.Counter

	interlockedMu sync.Mutex
	interlocked   bool

	width, height uint16
}

// New wraps buf in a Handle with refcount 1. width/height of 0
// indicate a non-surface (generic) buffer; both must be given together
// for a surface, matching is_surface's width!=0 convention.
func New(buf *dmabuf.Buffer, width, height uint16) *Handle {
	return &Handle{
		buf:         buf,
		refcount:    1,
		interlocked: true,
		width:       width,
		height:      height,
	}
}

// Buffer returns the underlying DMA buffer.
func (h *Handle) Buffer() *dmabuf.Buffer {
	return h.buf
}

// Get increments the reference count; used whenever a new owner
// (context slot or device change-record) starts referencing the
// handle, mirroring hd2_buff_get.
func (h *Handle) Get() {
	atomic.AddInt32(&h.refcount, 1)
}

// Put decrements the reference count and frees the underlying buffer
// once it reaches zero, mirroring hd2_buff_put/do_hd2_buff_release.
func (h *Handle) Put() {
	if atomic.AddInt32(&h.refcount, -1) == 0 {
		h.buf.Free()
	}
}

// IsSurface reports whether this handle was created with surface
// dimensions.
func (h *Handle) IsSurface() bool {
	return h.width != 0
}

// Width returns the surface width. Callers must only call this on a
// surface handle; get_buff_width's BUG_ON becomes a panic here, since
// calling it on a non-surface handle is a validator bug, not a runtime
// condition.
func (h *Handle) Width() uint16 {
	if h.width == 0 || h.height == 0 {
		panic("handle: Width on non-surface handle")
	}
	return h.width
}

// Height is the Width counterpart.
func (h *Handle) Height() uint16 {
	if h.width == 0 || h.height == 0 {
		panic("handle: Height on non-surface handle")
	}
	return h.height
}

// Size returns the buffer's byte size.
func (h *Handle) Size() int {
	return h.buf.Size()
}

// PageTableAddress returns the DMA page table address the device's
// TLB should be pointed at for this handle.
func (h *Handle) PageTableAddress() uint64 {
	return h.buf.PageTableAddress()
}

// LastUse returns the most recent batch_cnt at which a command
// referencing this handle (for read or write) was submitted.
func (h *Handle) LastUse() counter.Counter {
	h.lastUseMu.Lock()
	defer h.lastUseMu.Unlock()
	return h.lastUse
}

// SetLastUse records cnt as the handle's last-use fence. cnt must not
// regress; set_last_use's BUG_ON(cnt < last_use) becomes a panic,
// since a regression here is a ring-core invariant violation.
func (h *Handle) SetLastUse(cnt counter.Counter) {
	h.lastUseMu.Lock()
	defer h.lastUseMu.Unlock()
	if cnt < h.lastUse {
		panic("handle: SetLastUse regression")
	}
	h.lastUse = cnt
}

// LastWrite returns the most recent batch_cnt at which a command wrote
// this handle (only ever the destination surface slot, in practice).
func (h *Handle) LastWrite() counter.Counter {
	h.lastWriteMu.Lock()
	defer h.lastWriteMu.Unlock()
	return h.lastWrite
}

// SetLastWrite records cnt as the handle's last-write fence and clears
// the interlocked flag, mirroring set_last_write.
func (h *Handle) SetLastWrite(cnt counter.Counter) {
	h.lastWriteMu.Lock()
	if cnt < h.lastWrite {
		h.lastWriteMu.Unlock()
		panic("handle: SetLastWrite regression")
	}
	h.lastWrite = cnt
	h.lastWriteMu.Unlock()

	h.interlockedMu.Lock()
	h.interlocked = false
	h.interlockedMu.Unlock()
}

// Interlocked reports whether the last device write to this handle
// happened before the last INTERLOCK command, i.e. whether a pending
// COPY_RECT source read is already ordered against it.
func (h *Handle) Interlocked() bool {
	h.interlockedMu.Lock()
	defer h.interlockedMu.Unlock()
	return h.interlocked
}

// Interlock marks the handle as interlocked.
func (h *Handle) Interlock() {
	h.interlockedMu.Lock()
	defer h.interlockedMu.Unlock()
	h.interlocked = true
}
