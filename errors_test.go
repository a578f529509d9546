package harddoom2

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kbr-/harddoom2/internal/dmabuf"
)

func TestNewErrorFormatsWithoutDevice(t *testing.T) {
	err := NewError("CreateSurface", CodeInval, "bad dimensions")
	assert.Equal(t, "harddoom2: CreateSurface: bad dimensions", err.Error())
	assert.Equal(t, 22, err.Errno)
}

func TestNewDeviceErrorFormatsWithDevice(t *testing.T) {
	err := NewDeviceError("Submit", 3, CodeNoSpace, "device table full")
	assert.Equal(t, "harddoom2: Submit: dev=3: device table full", err.Error())
	assert.Equal(t, 28, err.Errno)
}

func TestErrorsIsComparesByCode(t *testing.T) {
	a := NewError("op1", CodeInval, "msg1")
	b := NewError("op2", CodeInval, "msg2")
	c := NewError("op3", CodeOverflow, "msg3")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestWrapErrorPreservesCode(t *testing.T) {
	inner := NewError("inner", CodeBadFD, "bad fd")
	wrapped := WrapError("outer", inner)

	assert.Equal(t, CodeBadFD, wrapped.Code)
	assert.Equal(t, inner, wrapped.Inner)
}

func TestWrapErrorClassifiesPlainErrorsAsIO(t *testing.T) {
	wrapped := WrapError("outer", errors.New("boom"))
	assert.Equal(t, CodeIO, wrapped.Code)
	assert.Equal(t, 5, wrapped.Errno)
}

func TestWrapErrorNilIsNil(t *testing.T) {
	assert.Nil(t, WrapError("outer", nil))
}

func TestWrapErrorClassifiesDmabufSentinels(t *testing.T) {
	assert.Equal(t, CodeInval, WrapError("Handle.WriteAt", dmabuf.ErrNegativeOffset).Code)
	assert.Equal(t, CodeInval, WrapError("Handle.WriteAt", dmabuf.ErrZeroLengthCopy).Code)
	assert.Equal(t, CodeNoSpace, WrapError("Handle.WriteAt", dmabuf.ErrOffsetBeyondBuffer).Code)
}

func TestIsCode(t *testing.T) {
	err := NewError("op", CodeNoMem, "oom")
	assert.True(t, IsCode(err, CodeNoMem))
	assert.False(t, IsCode(err, CodeInval))
	assert.False(t, IsCode(errors.New("plain"), CodeNoMem))
}
