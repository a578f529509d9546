package submit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbr-/harddoom2/internal/constants"
	"github.com/kbr-/harddoom2/internal/counter"
	"github.com/kbr-/harddoom2/internal/dmabuf"
	"github.com/kbr-/harddoom2/internal/fence"
	"github.com/kbr-/harddoom2/internal/handle"
	"github.com/kbr-/harddoom2/internal/mmio"
	"github.com/kbr-/harddoom2/internal/ring"
	"github.com/kbr-/harddoom2/internal/uapi"
)

func newTestRing(t *testing.T) *ring.Device {
	t.Helper()
	sim := mmio.NewSimulator()
	fe := fence.New(sim, nil, nil)
	dev, err := ring.New(sim, fe, nil, nil, 64)
	require.NoError(t, err)
	return dev
}

func newTestSurface(t *testing.T, w, h uint16) *handle.Handle {
	t.Helper()
	buf, err := dmabuf.New(int(w) * int(h))
	require.NoError(t, err)
	return handle.New(buf, w, h)
}

func fillRectRaw(w, h, x, y uint16) []byte {
	cmd := &uapi.Cmd{Type: uapi.CmdTypeFillRect, FillRect: &uapi.FillRect{
		Width: w, Height: h, PosX: x, PosY: y,
	}}
	return cmd.Encode()
}

func TestBatchRejectsEmptyOrMisaligned(t *testing.T) {
	dev := newTestRing(t)
	var bound [constants.NumUserBufs]*handle.Handle

	_, err := Batch(dev, bound, nil)
	assert.ErrorIs(t, err, ErrInval)

	_, err = Batch(dev, bound, make([]byte, constants.CmdWordBytes-1))
	assert.ErrorIs(t, err, ErrInval)
}

func TestBatchRejectsWhenNoValidPrefix(t *testing.T) {
	dev := newTestRing(t)
	var bound [constants.NumUserBufs]*handle.Handle // no destination bound

	raw := fillRectRaw(8, 8, 0, 0)
	_, err := Batch(dev, bound, raw)
	assert.ErrorIs(t, err, ErrInval)
}

func TestBatchAcceptsLongestValidPrefix(t *testing.T) {
	dev := newTestRing(t)
	var bound [constants.NumUserBufs]*handle.Handle
	bound[constants.DstSurfaceBufIdx] = newTestSurface(t, 64, 64)

	var raw []byte
	raw = append(raw, fillRectRaw(8, 8, 0, 0)...)
	raw = append(raw, fillRectRaw(8, 8, 8, 0)...)
	raw = append(raw, fillRectRaw(8, 8, 1000, 1000)...) // out of bounds, invalid

	n, err := Batch(dev, bound, raw)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBatchSetsInterlockOnCopyRectSource(t *testing.T) {
	dev := newTestRing(t)
	var bound [constants.NumUserBufs]*handle.Handle
	bound[constants.DstSurfaceBufIdx] = newTestSurface(t, 64, 64)
	src := newTestSurface(t, 64, 64)
	bound[constants.SrcSurfaceBufIdx] = src
	assert.True(t, src.Interlocked(), "fresh handle starts interlocked")
	src.SetLastWrite(counter.Make(0, 1))
	assert.False(t, src.Interlocked())

	cmd := &uapi.Cmd{Type: uapi.CmdTypeCopyRect, CopyRect: &uapi.CopyRect{
		Width: 8, Height: 8, PosDstX: 0, PosDstY: 0, PosSrcX: 0, PosSrcY: 0,
	}}
	n, err := Batch(dev, bound, cmd.Encode())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, src.Interlocked())
}
