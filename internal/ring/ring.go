// Package ring implements the ring & interrupt core: the single
// writer of the device's command ring, the back-pressure protocol that
// guards it, and the FIFO garbage collector for buffer handles
// displaced by a SETUP command. Grounded on hd2.c's harddoom2_write,
// setup_buffers, collect_buffers and doom_irq_handler.
package ring

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/kbr-/harddoom2/internal/constants"
	"github.com/kbr-/harddoom2/internal/counter"
	"github.com/kbr-/harddoom2/internal/dmabuf"
	"github.com/kbr-/harddoom2/internal/fence"
	"github.com/kbr-/harddoom2/internal/handle"
	"github.com/kbr-/harddoom2/internal/logging"
	"github.com/kbr-/harddoom2/internal/mmio"
	"github.com/kbr-/harddoom2/internal/regs"
	"github.com/kbr-/harddoom2/internal/uapi"
)

// microcode is the front-end program loaded into FE_CODE_WINDOW on
// reset. The real microcode is proprietary to the device and out of
// scope here; an empty program still exercises the full upload
// sequence against a Registers implementation.
var microcode []uint32

// Observer receives notifications about ring-level events for metrics
// collection. All methods must be safe to call under d.mu.
type Observer interface {
	ObserveBackpressure()
	ObservePongAsyncWakeup()
	ObserveChangeRecordCreated()
	ObserveChangeRecordsCollected(n, handles uint64)
}

type noopObserver struct{}

func (noopObserver) ObserveBackpressure()                    {}
func (noopObserver) ObservePongAsyncWakeup()                  {}
func (noopObserver) ObserveChangeRecordCreated()              {}
func (noopObserver) ObserveChangeRecordsCollected(uint64, uint64) {}

// changeRecord pins the buffer handles a SETUP command displaced from
// currBufs until the fence counter proves the device has finished
// every command that could still reference them.
type changeRecord struct {
	cnt     counter.Counter
	handles []*handle.Handle
}

// setupFlags maps a bound-buffer slot index to the SETUP flag bit that
// marks it present.
var setupFlags = [constants.NumUserBufs]uint32{
	regs.CmdFlagSetupSurfDst,
	regs.CmdFlagSetupSurfSrc,
	regs.CmdFlagSetupTexture,
	regs.CmdFlagSetupFlat,
	regs.CmdFlagSetupColormap,
	regs.CmdFlagSetupTranslation,
	regs.CmdFlagSetupTranmap,
}

// Device owns the command ring and every piece of state that must be
// touched under the same lock as a ring write: the write index, the
// currently-installed buffer set, the change-record FIFO, and the
// batch counter those records and handle fences are stamped with.
type Device struct {
	regs  mmio.Registers
	log   *logging.Logger
	fence *fence.Engine
	obs   Observer

	cmds *dmabuf.Buffer

	mu        sync.Mutex
	writeCond *sync.Cond

	writeIdx    uint32
	intrEnable  uint32
	batchCnt    counter.Counter
	currBufs    [constants.NumUserBufs]*handle.Handle
	changes     *list.List
}

// New allocates a command ring of ringSlots slots and resets the
// device to a clean state. log may be nil, in which case
// logging.Default() is used.
func New(r mmio.Registers, fenceEngine *fence.Engine, log *logging.Logger, obs Observer, ringSlots int) (*Device, error) {
	if log == nil {
		log = logging.Default()
	}
	if obs == nil {
		obs = noopObserver{}
	}

	cmds, err := dmabuf.New(ringSlots * constants.CmdSendBytes)
	if err != nil {
		return nil, errors.Wrap(err, "ring: allocate command buffer")
	}

	d := &Device{regs: r, log: log, fence: fenceEngine, obs: obs, cmds: cmds, changes: list.New()}
	d.writeCond = sync.NewCond(&d.mu)
	r.SetInterruptHandler(d.handleInterrupt)

	d.mu.Lock()
	d.resetLocked()
	d.mu.Unlock()

	return d, nil
}

// Reset reprograms every device register to its power-on state,
// dropping the ring's write position back to zero. Any commands still
// in flight are abandoned; callers are expected to call this only
// during device bring-up.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *Device) resetLocked() {
	d.regs.LoadMicrocode(microcode)
	d.regs.Write32(regs.Reset, regs.ResetAll)

	size := uint32(d.cmds.Size() / constants.CmdSendBytes)
	d.regs.Write32(regs.CmdPT, uint32(d.cmds.PageTableAddress()>>8))
	d.regs.Write32(regs.CmdSize, size)
	d.regs.Write32(regs.CmdReadIdx, 0)
	d.regs.Write32(regs.CmdWriteIdx, 0)
	d.writeIdx = 0

	d.regs.Write32(regs.Intr, regs.IntrMask)
	d.intrEnable = regs.IntrMask &^ regs.IntrPongAsync
	d.regs.Write32(regs.IntrEnable, d.intrEnable)

	d.regs.Write32(regs.FenceCounter, 0)
	d.regs.Write32(regs.Enable, regs.EnableAll)
}

// BatchCnt returns the current batch counter: the count of the most
// recent batch the device has been asked to process, used by PowerOff
// to know how far to drain.
func (d *Device) BatchCnt() counter.Counter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batchCnt
}

// PowerOff drains the device ahead of a planned shutdown and disables
// it, mirroring device_off: wait for last_fence_cnt to reach batch_cnt
// (everything already queued has retired), then clear ENABLE, clear
// INTR_ENABLE, and do a barrier read of ENABLE to make sure no
// interrupt is in flight when the caller returns.
func (d *Device) PowerOff() {
	d.fence.Wait(d.BatchCnt())

	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs.Write32(regs.Enable, 0)
	d.regs.Write32(regs.IntrEnable, 0)
	d.regs.Read32(regs.Enable)
}

// Resume re-runs the full reset sequence and re-installs the buffer set
// that was bound before suspend: uploads microcode, resets registers,
// re-programs the ring pointer/length, then writes a single SETUP+FENCE
// command at ring index 0 reinstalling curr_bufs, advancing the write
// index and bumping batch_cnt accordingly. Mirrors the resume path
// described alongside device_off: the device forgets everything across
// a reset, so the ring core must tell it about curr_bufs again before
// any ordinary Write can rely on SETUP-diffing against them.
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
	d.reinstallBuffersLocked()
}

// reinstallBuffersLocked re-emits a SETUP command for the
// currently-installed buffer set after a reset has wiped the device's
// own notion of it. Unlike setupBuffersLocked, it never diffs against
// currBufs (everything is "new" to the just-reset device) and never
// creates a change record (nothing was displaced, only reinstalled).
func (d *Device) reinstallBuffersLocked() {
	var flags uint32
	for i, h := range d.currBufs {
		if h != nil {
			flags |= setupFlags[i]
		}
	}
	if flags == 0 {
		return
	}

	var dstWidth, srcWidth uint16
	if d.currBufs[constants.DstSurfaceBufIdx] != nil {
		dstWidth = d.currBufs[constants.DstSurfaceBufIdx].Width()
	}
	if d.currBufs[constants.SrcSurfaceBufIdx] != nil {
		srcWidth = d.currBufs[constants.SrcSurfaceBufIdx].Width()
	}

	var cmd regs.Cmd
	cmd[0] = regs.W0Setup(flags, dstWidth, srcWidth)
	d.writeSlotLocked(cmd, regs.CmdFlagFence)
	d.regs.Write32(regs.CmdWriteIdx, d.writeIdx)
	d.batchCnt = d.batchCnt.Incr()
}

// handleInterrupt is the device's interrupt callback: FENCE wakes
// fence waiters, PONG_ASYNC wakes ring writers blocked on back-pressure,
// and anything else is a condition this driver never arms and never
// expects, so it is fatal.
func (d *Device) handleInterrupt(active uint32) {
	d.regs.Write32(regs.Intr, active)
	if active&regs.IntrFence != 0 {
		d.fence.OnFenceInterrupt()
	}
	if active&regs.IntrPongAsync != 0 {
		d.mu.Lock()
		d.writeCond.Broadcast()
		d.mu.Unlock()
	}
	if rest := active &^ (regs.IntrFence | regs.IntrPongAsync); rest != 0 {
		d.log.Errorf("ring: fatal interrupt condition 0x%x", rest)
		panic(fmt.Sprintf("ring: fatal interrupt condition 0x%x", rest))
	}
}

// spaceLocked returns the number of free ring slots: CMD_READ_IDX -
// write_idx - 1, modulo the ring size, as get_cmd_buf_space computes
// it. Caller must hold d.mu.
func (d *Device) spaceLocked() uint32 {
	size := int64(d.cmds.Size() / constants.CmdSendBytes)
	readIdx := int64(d.regs.Read32(regs.CmdReadIdx))
	writeIdx := int64(d.writeIdx)

	diff := readIdx - writeIdx - 1
	diff = ((diff % size) + size) % size
	return uint32(diff)
}

func (d *Device) ackPongAsyncLocked() {
	d.regs.Write32(regs.Intr, regs.IntrPongAsync)
}

func (d *Device) enablePongAsyncLocked() {
	d.intrEnable |= regs.IntrPongAsync
	d.regs.Write32(regs.IntrEnable, d.intrEnable)
}

func (d *Device) disablePongAsyncLocked() {
	d.intrEnable &^= regs.IntrPongAsync
	d.regs.Write32(regs.IntrEnable, d.intrEnable)
}

// writeSlotLocked writes one 32-byte command into the next free ring
// slot and advances the local write index. It does not program
// CMD_WRITE_IDX; callers batch that update until the whole submission
// has been written.
func (d *Device) writeSlotLocked(cmd regs.Cmd, extraFlags uint32) {
	cmd[0] |= extraFlags

	var raw [constants.CmdSendBytes]byte
	for i, w := range cmd {
		putLE32(raw[i*4:], w)
	}

	size := d.cmds.Size() / constants.CmdSendBytes
	slot := int(d.writeIdx) % size
	d.cmds.CopyIn(raw[:], slot*constants.CmdSendBytes)
	d.writeIdx++
}

func putLE32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

// setupBuffersLocked diffs bufs against the currently-installed buffer
// set and, if anything changed, emits a SETUP command and records any
// displaced handles in a change record pinned at the current batch
// count. It reports whether a ring slot was consumed.
func (d *Device) setupBuffersLocked(bufs [constants.NumUserBufs]*handle.Handle) bool {
	changed := false
	for i := 0; i < constants.NumUserBufs; i++ {
		if bufs[i] != d.currBufs[i] {
			changed = true
			break
		}
	}
	if !changed {
		return false
	}

	var displaced []*handle.Handle
	for i := 0; i < constants.NumUserBufs; i++ {
		if d.currBufs[i] != nil && d.currBufs[i] != bufs[i] {
			d.currBufs[i].Get()
			displaced = append(displaced, d.currBufs[i])
		}
		d.currBufs[i] = bufs[i]
	}
	if len(displaced) > 0 {
		d.changes.PushBack(&changeRecord{cnt: d.batchCnt, handles: displaced})
		d.obs.ObserveChangeRecordCreated()
	}

	var flags uint32
	for i, h := range bufs {
		if h != nil {
			flags |= setupFlags[i]
		}
	}
	if d.writeIdx%constants.PingPeriod == 0 {
		flags |= regs.CmdFlagPingAsync
	}

	var dstWidth, srcWidth uint16
	if bufs[constants.DstSurfaceBufIdx] != nil {
		dstWidth = bufs[constants.DstSurfaceBufIdx].Width()
	}
	if bufs[constants.SrcSurfaceBufIdx] != nil {
		srcWidth = bufs[constants.SrcSurfaceBufIdx].Width()
	}

	var cmd regs.Cmd
	cmd[0] = regs.W0Setup(flags, dstWidth, srcWidth)
	d.writeSlotLocked(cmd, 0)
	return true
}

// collectChangesLocked pops change records off the FIFO front while
// the current fence count has caught up to the record's batch count,
// releasing the reference each displaced handle was pinned with.
func (d *Device) collectChangesLocked(fenceCnt counter.Counter) {
	var records, handles uint64
	for d.changes.Len() > 0 {
		rec := d.changes.Front().Value.(*changeRecord)
		if !fenceCnt.GE(rec.cnt) {
			break
		}
		d.changes.Remove(d.changes.Front())
		for _, h := range rec.handles {
			h.Put()
		}
		records++
		handles += uint64(len(rec.handles))
	}
	if records > 0 {
		d.obs.ObserveChangeRecordsCollected(records, handles)
	}
}

// Write submits a batch of already-translated commands against the
// given bound-buffer set, blocking under back-pressure as needed. It
// returns the number of commands actually written, which may be less
// than len(cmds) if the ring did not have enough free space; the
// caller is expected to call Write again for the remainder. Mirrors
// harddoom2_write.
func (d *Device) Write(bufs [constants.NumUserBufs]*handle.Handle, cmds []regs.Cmd) (int, error) {
	if len(cmds) == 0 {
		return 0, nil
	}

	d.fence.Poll()

	d.mu.Lock()
	defer d.mu.Unlock()

	for d.spaceLocked() < 2 {
		d.obs.ObserveBackpressure()
		d.ackPongAsyncLocked()
		if d.spaceLocked() >= 2 {
			break
		}
		d.enablePongAsyncLocked()
		d.writeCond.Wait()
		d.obs.ObservePongAsyncWakeup()
	}
	d.disablePongAsyncLocked()
	d.writeCond.Broadcast()

	d.setupBuffersLocked(bufs)

	n := uint32(len(cmds))
	if space := d.spaceLocked(); n > space {
		n = space
	}
	if n == 0 {
		panic("ring: no command slots available after setup")
	}

	for i := uint32(0); i < n; i++ {
		var extra uint32
		if d.writeIdx%constants.PingPeriod == 0 {
			extra |= regs.CmdFlagPingAsync
		}
		if i == n-1 {
			extra |= regs.CmdFlagFence
		}
		d.writeSlotLocked(cmds[i], extra)
	}
	d.regs.Write32(regs.CmdWriteIdx, d.writeIdx)

	d.batchCnt = d.batchCnt.Incr()
	if bufs[constants.DstSurfaceBufIdx] != nil {
		bufs[constants.DstSurfaceBufIdx].SetLastWrite(d.batchCnt)
	}
	for _, h := range bufs {
		if h != nil {
			h.SetLastUse(d.batchCnt)
		}
	}

	d.collectChangesLocked(d.fence.Poll())

	return int(n), nil
}

// TranslateCmd packs a decoded user command into an eight-word ring
// slot, mirroring make_cmd/make_setup's per-type word layout. interlock
// sets the INTERLOCK flag, used by the submission path to order a
// COPY_RECT against a source surface's still-pending writes. bound is
// the context's currently-installed buffer set; DRAW_COLUMN needs it to
// derive word 7's texture data limit from the bound texture buffer's
// size, exactly as make_cmd reads hd2->curr_bufs[TEXTURE_BUF_IDX].
func TranslateCmd(c *uapi.Cmd, interlock bool, bound [constants.NumUserBufs]*handle.Handle) regs.Cmd {
	var cmd regs.Cmd

	switch c.Type {
	case uapi.CmdTypeCopyRect:
		p := c.CopyRect
		cmd[0] = regs.W0(regs.CmdTypeCopyRect, 0)
		cmd[2] = regs.W3(p.PosSrcX, p.PosSrcY)
		cmd[3] = regs.W3(p.PosDstX, p.PosDstY)
		cmd[6] = regs.W6A(p.Width, p.Height, 0)
	case uapi.CmdTypeFillRect:
		p := c.FillRect
		cmd[0] = regs.W0(regs.CmdTypeFillRect, 0)
		cmd[3] = regs.W3(p.PosX, p.PosY)
		cmd[6] = regs.W6A(p.Width, p.Height, p.FillColor)
	case uapi.CmdTypeDrawLine:
		p := c.DrawLine
		cmd[0] = regs.W0(regs.CmdTypeDrawLine, 0)
		cmd[2] = regs.W3(p.PosAX, p.PosAY)
		cmd[3] = regs.W3(p.PosBX, p.PosBY)
		cmd[6] = regs.W6A(0, 0, p.FillColor)
	case uapi.CmdTypeDrawBackground:
		p := c.DrawBackground
		cmd[0] = regs.W0(regs.CmdTypeDrawBackground, 0)
		cmd[2] = regs.W2(p.PosX, p.PosY, p.FlatIdx)
		cmd[6] = regs.W6A(p.Width, p.Height, 0)
	case uapi.CmdTypeDrawColumn:
		p := c.DrawColumn
		extra := cmdFlagsFromUAPI(p.Flags)
		cmd[0] = regs.W0(regs.CmdTypeDrawColumn, extra)
		cmd[1] = regs.W1(translationIdxFor(extra, p.TranslationIdx), colormapIdxFor(extra, p.ColormapIdx))
		cmd[2] = regs.W3(p.PosX, p.PosAY)
		cmd[3] = regs.W3(p.PosX, p.PosBY)
		cmd[4] = p.UStart
		cmd[5] = p.UStep
		cmd[6] = regs.W6B(p.TextureOffset)
		cmd[7] = regs.W7B(textureLimitFor(bound[constants.TextureBufIdx]), p.TextureHeight)
	case uapi.CmdTypeDrawSpan:
		p := c.DrawSpan
		extra := cmdFlagsFromUAPI(p.Flags)
		cmd[0] = regs.W0(regs.CmdTypeDrawSpan, extra)
		cmd[1] = regs.W1(translationIdxFor(extra, p.TranslationIdx), colormapIdxFor(extra, p.ColormapIdx))
		cmd[2] = regs.W2(p.PosAX, p.PosY, p.FlatIdx)
		cmd[3] = regs.W3(p.PosBX, 0)
		cmd[4] = p.UStart
		cmd[5] = p.UStep
		cmd[6] = p.VStart
		cmd[7] = p.VStep
	case uapi.CmdTypeDrawFuzz:
		p := c.DrawFuzz
		cmd[0] = regs.W0(regs.CmdTypeDrawFuzz, 0)
		cmd[1] = regs.W1(0, p.ColormapIdx)
		cmd[2] = regs.W3(p.PosX, p.PosAY)
		cmd[3] = regs.W3(0, p.PosBY)
		cmd[6] = regs.W6C(p.FuzzStart, p.FuzzEnd, p.FuzzPos)
	}

	if interlock {
		cmd[0] |= regs.CmdFlagInterlock
	}
	return cmd
}

// translationIdxFor and colormapIdxFor zero the table index when its
// enabling flag isn't set, matching make_cmd's
// "flags & DOOMDEV2_CMD_FLAGS_TRANSLATE ? cmd->translation_idx : 0"
// ternaries for DRAW_COLUMN and DRAW_SPAN.
func translationIdxFor(extraFlags uint32, idx uint16) uint16 {
	if extraFlags&regs.CmdFlagTranslation == 0 {
		return 0
	}
	return idx
}

func colormapIdxFor(extraFlags uint32, idx uint16) uint16 {
	if extraFlags&regs.CmdFlagColormap == 0 {
		return 0
	}
	return idx
}

// textureLimitFor derives word 7's texture data limit field: the
// address (in 64-byte units) of the last valid byte of the bound
// texture buffer, i.e. (size-1)>>6. A nil texture buffer (no texture
// bound) yields 0, as get_buff_size would never be called on one in
// practice since the validator requires a texture buffer for
// DRAW_COLUMN.
func textureLimitFor(texture *handle.Handle) uint16 {
	if texture == nil {
		return 0
	}
	return uint16((texture.Size() - 1) >> 6)
}

func cmdFlagsFromUAPI(f uint8) uint32 {
	var flags uint32
	if f&uapi.FlagTranslate != 0 {
		flags |= regs.CmdFlagTranslation
	}
	if f&uapi.FlagColormap != 0 {
		flags |= regs.CmdFlagColormap
	}
	if f&uapi.FlagTranmap != 0 {
		flags |= regs.CmdFlagTranmap
	}
	return flags
}
