package dmabuf

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbr-/harddoom2/internal/constants"
)

func TestNewSizing(t *testing.T) {
	b, err := New(10)
	require.NoError(t, err)
	assert.Equal(t, 10, b.Size())
	assert.Equal(t, 1, b.numPages())

	b, err = New(constants.PageSize + 1)
	require.NoError(t, err)
	assert.Equal(t, 2, b.numPages())
}

func TestNewRejectsOutOfRange(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	_, err = New(-1)
	assert.Error(t, err)

	_, err = New(constants.MaxBufferSize + 1)
	assert.Error(t, err)
}

func TestPageTableEntries(t *testing.T) {
	b, err := New(constants.PageSize + 1)
	require.NoError(t, err)

	for i, addr := range b.pageAddrs {
		pte := le32(b.pageTable[i*4:])
		want := uint32((addr>>12)<<4) | 0x3
		assert.Equal(t, want, pte, "page %d PTE", i)
	}
}

func TestCopyInOutAcrossPageBoundary(t *testing.T) {
	b, err := New(2 * constants.PageSize)
	require.NoError(t, err)

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}

	pos := constants.PageSize - 50
	b.CopyIn(data, pos)

	got := make([]byte, 100)
	b.CopyOut(got, pos)
	assert.Equal(t, data, got)
}

func TestCopyInOutOfBoundsPanics(t *testing.T) {
	b, err := New(16)
	require.NoError(t, err)

	assert.Panics(t, func() {
		b.CopyIn(make([]byte, 17), 0)
	})
	assert.Panics(t, func() {
		b.CopyOut(make([]byte, 1), 16)
	})
}

func TestCopyFromUserClampsToRemainingSpace(t *testing.T) {
	b, err := New(16)
	require.NoError(t, err)

	n, err := b.CopyFromUser(make([]byte, 20), 10)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestCopyFromUserRejectsOffsetBeyondBuffer(t *testing.T) {
	b, err := New(16)
	require.NoError(t, err)

	_, err = b.CopyFromUser(make([]byte, 1), 16)
	assert.True(t, stderrors.Is(err, ErrOffsetBeyondBuffer))

	_, err = b.CopyFromUser(make([]byte, 1), -1)
	assert.True(t, stderrors.Is(err, ErrNegativeOffset))
}

func TestCopyFromUserRejectsZeroLengthAfterClamp(t *testing.T) {
	b, err := New(16)
	require.NoError(t, err)

	_, err = b.CopyFromUser(make([]byte, 1), 16)
	assert.Error(t, err)

	_, err = b.CopyToUser(make([]byte, 0), 0)
	assert.True(t, stderrors.Is(err, ErrZeroLengthCopy))
}

func TestCopyToUserRejectsNegativeOffset(t *testing.T) {
	b, err := New(16)
	require.NoError(t, err)

	_, err = b.CopyToUser(make([]byte, 1), -1)
	assert.True(t, stderrors.Is(err, ErrNegativeOffset))
}

func TestCopyToUserAtExactEndReturnsZero(t *testing.T) {
	b, err := New(16)
	require.NoError(t, err)

	n, err := b.CopyToUser(make([]byte, 4), 16)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFreeClearsPages(t *testing.T) {
	b, err := New(16)
	require.NoError(t, err)
	b.Free()
	assert.Nil(t, b.pages)
	assert.Nil(t, b.pageTable)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
