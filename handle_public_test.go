package harddoom2

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSizeAndSurfaceness(t *testing.T) {
	_, ctx := newTestDeviceAndContext(t)

	surf, err := ctx.CreateSurface(64, 64)
	require.NoError(t, err)
	assert.Equal(t, 64*64, surf.Size())
	assert.True(t, surf.IsSurface())

	buf, err := ctx.CreateBuffer(256)
	require.NoError(t, err)
	assert.Equal(t, 256, buf.Size())
	assert.False(t, buf.IsSurface())
}

func TestHandleWriteAtThenReadAtRoundTrip(t *testing.T) {
	_, ctx := newTestDeviceAndContext(t)

	buf, err := ctx.CreateBuffer(256)
	require.NoError(t, err)

	payload := []byte("harddoom2-handle-roundtrip")
	n, err := buf.WriteAt(payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	out := make([]byte, len(payload))
	n, err = buf.ReadAt(out, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, out)
}

func TestHandleGetPutReferenceCounting(t *testing.T) {
	_, ctx := newTestDeviceAndContext(t)

	surf, err := ctx.CreateSurface(64, 64)
	require.NoError(t, err)

	surf.Get()
	n, err := surf.WriteAt([]byte{0xAB}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	surf.Put() // drops the extra Get reference; the creation reference still holds the buffer alive
	n, err = surf.WriteAt([]byte{0xCD}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHandleReadWriteAdvancePosition(t *testing.T) {
	_, ctx := newTestDeviceAndContext(t)

	buf, err := ctx.CreateBuffer(16)
	require.NoError(t, err)

	n, err := buf.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = buf.Write([]byte("ef"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pos, err := buf.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)

	out := make([]byte, 6)
	n, err = buf.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte("abcdef"), out)

	pos, err = buf.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)
}

func TestHandleSeekWhencesAndBounds(t *testing.T) {
	_, ctx := newTestDeviceAndContext(t)

	buf, err := ctx.CreateBuffer(16)
	require.NoError(t, err)

	pos, err := buf.Seek(10, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)

	pos, err = buf.Seek(-4, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	pos, err = buf.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(16), pos)

	_, err = buf.Seek(1, io.SeekEnd)
	assert.True(t, IsCode(err, CodeInval))

	_, err = buf.Seek(-1, io.SeekStart)
	assert.True(t, IsCode(err, CodeInval))

	pos, err = buf.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos, "a rejected seek leaves the position unchanged, so a fresh SeekStart still lands at 0")
}
