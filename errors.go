package harddoom2

import (
	stderrors "errors"
	"fmt"

	"github.com/kbr-/harddoom2/internal/dmabuf"
)

// Error is a structured driver error carrying the operation that
// failed, the device it failed against, a high-level category, and
// (where the condition originates from a value the original C driver
// returned as a negative errno) the numeric code that errno mapped to.
type Error struct {
	Op     string    // operation that failed, e.g. "Submit", "CreateSurface"
	DevID  int       // device number (-1 if not applicable)
	Code   ErrorCode // high-level error category
	Errno  int       // POSIX errno the original driver would have returned, 0 if none
	Msg    string    // human-readable detail
	Inner  error     // wrapped error
}

func (e *Error) Error() string {
	if e.DevID >= 0 {
		return fmt.Sprintf("harddoom2: %s: dev=%d: %s", e.Op, e.DevID, e.Msg)
	}
	return fmt.Sprintf("harddoom2: %s: %s", e.Op, e.Msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison by error category.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode is the driver's error taxonomy, each value named for (and
// carrying) the POSIX errno the original kernel driver returned.
type ErrorCode string

const (
	// CodeInval marks a malformed request: bad dimensions, bad fd,
	// misaligned batch, validator rejection.
	CodeInval ErrorCode = "invalid argument"
	// CodeNoMem marks allocation failure for a DMA buffer or page table.
	CodeNoMem ErrorCode = "out of memory"
	// CodeOverflow marks a value exceeding a hardware-imposed bound
	// (surface dimension, buffer size).
	CodeOverflow ErrorCode = "value too large"
	// CodeFault marks a failed user-memory copy that transferred zero
	// bytes.
	CodeFault ErrorCode = "bad address"
	// CodeNoSpace marks a full device table, or a buffer write whose
	// offset is at or past the end of the buffer.
	CodeNoSpace ErrorCode = "no space left"
	// CodeBadFD marks an unresolvable buffer file descriptor.
	CodeBadFD ErrorCode = "bad file descriptor"
	// CodeNotTTY marks an unrecognized ioctl/operation on a context.
	CodeNotTTY ErrorCode = "inappropriate ioctl for device"
	// CodeIO marks an I/O-layer failure talking to the register file.
	CodeIO ErrorCode = "I/O error"
)

// errnoOf returns the POSIX errno value the original driver associated
// with code, for callers that need to surface it verbatim.
func errnoOf(code ErrorCode) int {
	switch code {
	case CodeInval:
		return 22 // EINVAL
	case CodeNoMem:
		return 12 // ENOMEM
	case CodeOverflow:
		return 75 // EOVERFLOW
	case CodeFault:
		return 14 // EFAULT
	case CodeNoSpace:
		return 28 // ENOSPC
	case CodeBadFD:
		return 9 // EBADF
	case CodeNotTTY:
		return 25 // ENOTTY
	default:
		return 5 // EIO
	}
}

// NewError creates a structured error not tied to a specific device.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, DevID: -1, Code: code, Errno: errnoOf(code), Msg: msg}
}

// NewDeviceError creates a structured error tied to devID.
func NewDeviceError(op string, devID int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, DevID: devID, Code: code, Errno: errnoOf(code), Msg: msg}
}

// WrapError wraps inner with operation context, preserving its code if
// it is already a *Error, classifying dmabuf's sentinel errors per
// hd2_buff_write/hd2_buff_read's EINVAL/ENOSPC split, and otherwise
// defaulting to CodeIO.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if e, ok := inner.(*Error); ok {
		return &Error{Op: op, DevID: e.DevID, Code: e.Code, Errno: e.Errno, Msg: e.Msg, Inner: inner}
	}

	code := CodeIO
	switch {
	case stderrors.Is(inner, dmabuf.ErrNegativeOffset), stderrors.Is(inner, dmabuf.ErrZeroLengthCopy):
		code = CodeInval
	case stderrors.Is(inner, dmabuf.ErrOffsetBeyondBuffer):
		code = CodeNoSpace
	}
	return &Error{Op: op, DevID: -1, Code: code, Errno: errnoOf(code), Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}
