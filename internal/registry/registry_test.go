package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbr-/harddoom2/internal/constants"
)

func TestAllocAssignsLowestFreeNumber(t *testing.T) {
	r := New()

	n0, err := r.Alloc("a")
	require.NoError(t, err)
	assert.Equal(t, 0, n0)

	n1, err := r.Alloc("b")
	require.NoError(t, err)
	assert.Equal(t, 1, n1)

	require.NoError(t, r.Free(n0))

	n2, err := r.Alloc("c")
	require.NoError(t, err)
	assert.Equal(t, 0, n2, "freed slot should be reused before growing")
}

func TestAllocReturnsNoSpaceWhenFull(t *testing.T) {
	r := New()
	for i := 0; i < constants.DevicesLimit; i++ {
		_, err := r.Alloc(i)
		require.NoError(t, err)
	}

	_, err := r.Alloc("overflow")
	assert.ErrorIs(t, err, ErrNoSpace)
}

func TestFreeRejectsUnassignedNumber(t *testing.T) {
	r := New()
	assert.ErrorIs(t, r.Free(5), ErrBadNumber)
	assert.ErrorIs(t, r.Free(-1), ErrBadNumber)
	assert.ErrorIs(t, r.Free(constants.DevicesLimit), ErrBadNumber)
}

func TestGetReturnsRegisteredValue(t *testing.T) {
	r := New()
	n, err := r.Alloc("payload")
	require.NoError(t, err)

	got, err := r.Get(n)
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
}

func TestGetRejectsFreedNumber(t *testing.T) {
	r := New()
	n, err := r.Alloc("x")
	require.NoError(t, err)
	require.NoError(t, r.Free(n))

	_, err = r.Get(n)
	assert.ErrorIs(t, err, ErrBadNumber)
}
