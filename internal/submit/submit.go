// Package submit implements the submission path: validating a user
// command batch against the context's bound buffers, translating the
// accepted prefix into ring slots, and handing it to the ring core.
// Grounded on context_write/harddoom2_write combined.
package submit

import (
	"github.com/pkg/errors"

	"github.com/kbr-/harddoom2/internal/constants"
	"github.com/kbr-/harddoom2/internal/handle"
	"github.com/kbr-/harddoom2/internal/regs"
	"github.com/kbr-/harddoom2/internal/ring"
	"github.com/kbr-/harddoom2/internal/uapi"
	"github.com/kbr-/harddoom2/internal/validator"
)

// ErrInval is returned for a malformed batch or one whose first
// command fails validation.
var ErrInval = errors.New("submit: invalid batch")

// Batch decodes a raw command batch, caps it to MaxWriteBatchBytes,
// validates the longest valid prefix against bound, translates that
// prefix to ring slots (applying the COPY_RECT interlock rule), and
// writes it through dev. It returns the number of commands accepted,
// which may be fewer than the batch held if the ring did not have
// room for all of them.
func Batch(dev *ring.Device, bound [constants.NumUserBufs]*handle.Handle, raw []byte) (int, error) {
	if len(raw) == 0 || len(raw)%constants.CmdWordBytes != 0 {
		return 0, ErrInval
	}
	if len(raw) > constants.MaxWriteBatchBytes {
		raw = raw[:constants.MaxWriteBatchBytes-constants.MaxWriteBatchBytes%constants.CmdWordBytes]
	}

	numCmds := len(raw) / constants.CmdWordBytes
	decoded := make([]*uapi.Cmd, 0, numCmds)
	for i := 0; i < numCmds; i++ {
		cmd, err := uapi.Decode(raw[i*constants.CmdWordBytes : (i+1)*constants.CmdWordBytes])
		if err != nil {
			break
		}
		if err := validator.Validate(bound, cmd); err != nil {
			break
		}
		decoded = append(decoded, cmd)
	}
	if len(decoded) == 0 {
		return 0, ErrInval
	}

	translated := make([]regs.Cmd, len(decoded))
	for i, cmd := range decoded {
		translated[i] = ring.TranslateCmd(cmd, interlockFor(bound, cmd), bound)
	}

	n, err := dev.Write(bound, translated)
	if err != nil {
		return 0, errors.Wrap(err, "submit: ring write")
	}
	return n, nil
}

// interlockFor applies the COPY_RECT interlock rule: if the command is
// a COPY_RECT and its source surface has not yet been interlocked
// since its last write, the returned flag pins the ordering and the
// source handle is marked interlocked so later commands in the same
// batch don't redundantly re-arm it.
func interlockFor(bound [constants.NumUserBufs]*handle.Handle, cmd *uapi.Cmd) bool {
	if cmd.Type != uapi.CmdTypeCopyRect {
		return false
	}
	src := bound[constants.SrcSurfaceBufIdx]
	if src == nil || src.Interlocked() {
		return false
	}
	src.Interlock()
	return true
}
