package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbr-/harddoom2/internal/counter"
	"github.com/kbr-/harddoom2/internal/dmabuf"
)

func newTestHandle(t *testing.T, width, height uint16) *Handle {
	t.Helper()
	buf, err := dmabuf.New(4096)
	require.NoError(t, err)
	return New(buf, width, height)
}

func TestIsSurface(t *testing.T) {
	surf := newTestHandle(t, 64, 64)
	assert.True(t, surf.IsSurface())

	buf := newTestHandle(t, 0, 0)
	assert.False(t, buf.IsSurface())
}

func TestWidthHeightPanicOnNonSurface(t *testing.T) {
	buf := newTestHandle(t, 0, 0)
	assert.Panics(t, func() { buf.Width() })
	assert.Panics(t, func() { buf.Height() })
}

func TestWidthHeight(t *testing.T) {
	surf := newTestHandle(t, 128, 256)
	assert.Equal(t, uint16(128), surf.Width())
	assert.Equal(t, uint16(256), surf.Height())
}

func TestGetPutFreesAtZero(t *testing.T) {
	h := newTestHandle(t, 0, 0)
	h.Get()
	assert.Equal(t, int32(2), h.refcount)
	h.Put()
	assert.Equal(t, int32(1), h.refcount)
	h.Put()
	assert.Equal(t, int32(0), h.refcount)
}

func TestSetLastUseRejectsRegression(t *testing.T) {
	h := newTestHandle(t, 0, 0)
	h.SetLastUse(counter.Make(0, 5))
	assert.Equal(t, counter.Make(0, 5), h.LastUse())
	assert.Panics(t, func() { h.SetLastUse(counter.Make(0, 4)) })
}

func TestSetLastWriteClearsInterlocked(t *testing.T) {
	h := newTestHandle(t, 0, 0)
	assert.True(t, h.Interlocked())

	h.SetLastWrite(counter.Make(0, 1))
	assert.False(t, h.Interlocked())
	assert.Equal(t, counter.Make(0, 1), h.LastWrite())
}

func TestSetLastWriteRejectsRegression(t *testing.T) {
	h := newTestHandle(t, 0, 0)
	h.SetLastWrite(counter.Make(0, 3))
	assert.Panics(t, func() { h.SetLastWrite(counter.Make(0, 2)) })
}

func TestInterlock(t *testing.T) {
	h := newTestHandle(t, 0, 0)
	h.SetLastWrite(counter.Make(0, 1))
	assert.False(t, h.Interlocked())
	h.Interlock()
	assert.True(t, h.Interlocked())
}
