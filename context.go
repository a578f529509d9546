package harddoom2

import (
	"sync"

	"github.com/kbr-/harddoom2/internal/constants"
	"github.com/kbr-/harddoom2/internal/dmabuf"
	"github.com/kbr-/harddoom2/internal/handle"
	"github.com/kbr-/harddoom2/internal/submit"
	"github.com/kbr-/harddoom2/internal/validator"
)

// Context is one opened file against a Device: its own independent set
// of seven bound buffer-handle slots, guarded by its own lock.
// Mirrors struct context in the original driver.
type Context struct {
	dev *Device

	mu    sync.Mutex
	bound [constants.NumUserBufs]*handle.Handle
}

// CreateSurface allocates a new surface-role buffer of the given
// dimensions. Width must be at least MinSurfaceWidth, a multiple of
// SurfaceWidthAlign, and height non-zero; both must be at most
// MaxSurfaceDim.
func (c *Context) CreateSurface(width, height uint16) (*Handle, error) {
	if c.dev.Removed() {
		return nil, NewDeviceError("CreateSurface", c.dev.number, CodeIO, "device removed")
	}
	if width < constants.MinSurfaceWidth || height == 0 || width%constants.SurfaceWidthAlign != 0 {
		return nil, NewError("CreateSurface", CodeInval, "bad surface dimensions")
	}
	if width > constants.MaxSurfaceDim || height > constants.MaxSurfaceDim {
		return nil, NewError("CreateSurface", CodeOverflow, "surface dimensions too large")
	}
	size := int(width) * int(height)
	if size > constants.MaxBufferSize {
		return nil, NewError("CreateSurface", CodeInval, "surface too large")
	}

	buf, err := dmabuf.New(size)
	if err != nil {
		return nil, NewError("CreateSurface", CodeNoMem, err.Error())
	}
	return &Handle{inner: handle.New(buf, width, height), dev: c.dev}, nil
}

// CreateBuffer allocates a new non-surface buffer of the given size.
func (c *Context) CreateBuffer(size uint32) (*Handle, error) {
	if c.dev.Removed() {
		return nil, NewDeviceError("CreateBuffer", c.dev.number, CodeIO, "device removed")
	}
	if size == 0 {
		return nil, NewError("CreateBuffer", CodeInval, "zero-sized buffer")
	}
	if size > constants.MaxBufferSize {
		return nil, NewError("CreateBuffer", CodeOverflow, "buffer too large")
	}

	buf, err := dmabuf.New(int(size))
	if err != nil {
		return nil, NewError("CreateBuffer", CodeNoMem, err.Error())
	}
	return &Handle{inner: handle.New(buf, 0, 0), dev: c.dev}, nil
}

// Setup rebinds the context's seven buffer-handle slots in role order
// (destination surface, source surface, texture, flat, colormap,
// translation, tranmap). A nil entry leaves that role unbound.
// Validates role/surface-ness and destination/source dimension
// matching before installing anything.
func (c *Context) Setup(fds [constants.NumUserBufs]*Handle) error {
	if c.dev.Removed() {
		return NewDeviceError("Setup", c.dev.number, CodeIO, "device removed")
	}
	var bufs [constants.NumUserBufs]*handle.Handle
	for i, h := range fds {
		if h != nil {
			bufs[i] = h.inner
		}
	}
	if err := validator.ValidateSetup(bufs); err != nil {
		return NewError("Setup", CodeInval, err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range bufs {
		if h != nil {
			h.Get()
		}
	}
	old := c.bound
	c.bound = bufs
	for _, h := range old {
		if h != nil {
			h.Put()
		}
	}
	return nil
}

// Submit validates and writes a batch of 32-byte commands against the
// context's currently bound buffers, returning the number of commands
// accepted. raw must be a non-empty, 32-byte-aligned batch; it is
// capped to MaxWriteBatchBytes.
func (c *Context) Submit(raw []byte) (int, error) {
	if c.dev.Removed() {
		return 0, NewDeviceError("Submit", c.dev.number, CodeIO, "device removed")
	}
	c.mu.Lock()
	bound := c.bound
	c.mu.Unlock()

	n, err := submit.Batch(c.dev.ring, bound, raw)
	c.dev.observer.ObserveSubmit(uint64(n), err == nil)
	if err != nil {
		return 0, NewError("Submit", CodeInval, err.Error())
	}
	return n, nil
}

// Close releases the context's references to its seven bound buffers.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range c.bound {
		if h != nil {
			h.Put()
		}
	}
	c.bound = [constants.NumUserBufs]*handle.Handle{}
	return nil
}
