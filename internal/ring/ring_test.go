package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbr-/harddoom2/internal/constants"
	"github.com/kbr-/harddoom2/internal/counter"
	"github.com/kbr-/harddoom2/internal/dmabuf"
	"github.com/kbr-/harddoom2/internal/fence"
	"github.com/kbr-/harddoom2/internal/handle"
	"github.com/kbr-/harddoom2/internal/mmio"
	"github.com/kbr-/harddoom2/internal/regs"
	"github.com/kbr-/harddoom2/internal/uapi"
)

type testObserver struct {
	backpressure      int
	pongWakeups       int
	recordsCreated    int
	recordsCollected  int
	handlesCollected  uint64
}

func (o *testObserver) ObserveBackpressure()       { o.backpressure++ }
func (o *testObserver) ObservePongAsyncWakeup()     { o.pongWakeups++ }
func (o *testObserver) ObserveChangeRecordCreated() { o.recordsCreated++ }
func (o *testObserver) ObserveChangeRecordsCollected(n, handles uint64) {
	o.recordsCollected += int(n)
	o.handlesCollected += handles
}

func newTestDevice(t *testing.T, ringSlots int, obs Observer) (*Device, *mmio.Simulator) {
	t.Helper()
	sim := mmio.NewSimulator()
	fe := fence.New(sim, nil, nil)
	dev, err := New(sim, fe, nil, obs, ringSlots)
	require.NoError(t, err)
	return dev, sim
}

func newSurfaceHandle(t *testing.T, w, h uint16) *handle.Handle {
	t.Helper()
	buf, err := dmabuf.New(int(w) * int(h))
	require.NoError(t, err)
	return handle.New(buf, w, h)
}

func newBufferHandle(t *testing.T, size int) *handle.Handle {
	t.Helper()
	buf, err := dmabuf.New(size)
	require.NoError(t, err)
	return handle.New(buf, 0, 0)
}

func TestNewResetsRegisters(t *testing.T) {
	dev, sim := newTestDevice(t, 8, nil)

	assert.Equal(t, uint32(8), sim.Read32(regs.CmdSize))
	assert.Equal(t, uint32(0), sim.Read32(regs.CmdReadIdx))
	assert.Equal(t, uint32(0), sim.Read32(regs.CmdWriteIdx))
	assert.Equal(t, uint32(regs.EnableAll), sim.Read32(regs.Enable))
	assert.Equal(t, uint32(1), sim.MicrocodeLoads())
	assert.Equal(t, 0, dev.changes.Len())
}

func TestPowerOffDrainsBeforeDisabling(t *testing.T) {
	dev, sim := newTestDevice(t, 8, nil)

	var bufs [constants.NumUserBufs]*handle.Handle
	_, err := dev.Write(bufs, []regs.Cmd{{}})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		dev.PowerOff()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("PowerOff returned before the outstanding batch's fence was reached")
	case <-time.After(50 * time.Millisecond):
	}

	sim.CompleteFence(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PowerOff never returned after its drain target fence completed")
	}

	assert.Equal(t, uint32(0), sim.Read32(regs.Enable))
	assert.Equal(t, uint32(0), sim.Read32(regs.IntrEnable))
}

func TestResumeReinstallsCurrBufsViaSetupFence(t *testing.T) {
	dev, sim := newTestDevice(t, 8, nil)

	var bufs [constants.NumUserBufs]*handle.Handle
	bufs[constants.DstSurfaceBufIdx] = newSurfaceHandle(t, 64, 64)
	_, err := dev.Write(bufs, []regs.Cmd{{}})
	require.NoError(t, err)

	before := dev.BatchCnt()
	loadsBeforeResume := sim.MicrocodeLoads()
	dev.Resume()

	assert.Equal(t, loadsBeforeResume+1, sim.MicrocodeLoads(), "Resume re-runs the reset sequence")
	assert.Equal(t, uint32(1), sim.Read32(regs.CmdWriteIdx), "the reinstall SETUP command consumes ring index 0")
	assert.True(t, dev.BatchCnt().GE(before.Incr()))
}

func TestResumeSkipsReinstallWhenNothingWasBound(t *testing.T) {
	dev, sim := newTestDevice(t, 8, nil)

	dev.Resume()

	assert.Equal(t, uint32(0), sim.Read32(regs.CmdWriteIdx))
}

func TestWriteWithNoBufferChangeSkipsSetup(t *testing.T) {
	dev, sim := newTestDevice(t, 8, nil)

	var bufs [constants.NumUserBufs]*handle.Handle
	n, err := dev.Write(bufs, []regs.Cmd{{}, {}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint32(2), sim.Read32(regs.CmdWriteIdx))
}

func TestWriteBindingNewSurfaceConsumesASetupSlot(t *testing.T) {
	dev, sim := newTestDevice(t, 8, nil)

	var bufs [constants.NumUserBufs]*handle.Handle
	bufs[constants.DstSurfaceBufIdx] = newSurfaceHandle(t, 64, 64)

	n, err := dev.Write(bufs, []regs.Cmd{{}, {}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	// One extra slot for SETUP plus the two commands.
	assert.Equal(t, uint32(3), sim.Read32(regs.CmdWriteIdx))
}

func TestWriteCapsToAvailableSpace(t *testing.T) {
	dev, _ := newTestDevice(t, 4, nil)

	var bufs [constants.NumUserBufs]*handle.Handle
	// Ring has 4 slots; space() caps at size-1 = 3 free initially.
	n, err := dev.Write(bufs, []regs.Cmd{{}, {}, {}, {}, {}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWriteStampsHandleFences(t *testing.T) {
	dev, _ := newTestDevice(t, 8, nil)

	var bufs [constants.NumUserBufs]*handle.Handle
	dst := newSurfaceHandle(t, 64, 64)
	bufs[constants.DstSurfaceBufIdx] = dst

	_, err := dev.Write(bufs, []regs.Cmd{{}})
	require.NoError(t, err)

	assert.Equal(t, counter.Make(0, 1), dst.LastWrite())
	assert.Equal(t, counter.Make(0, 1), dst.LastUse())
}

func TestWriteBlocksUnderBackpressureUntilPongAsync(t *testing.T) {
	dev, sim := newTestDevice(t, 4, nil)
	var bufs [constants.NumUserBufs]*handle.Handle

	// Drain the ring to 1 free slot (space() < 2 triggers back-pressure).
	_, err := dev.Write(bufs, []regs.Cmd{{}, {}})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, err := dev.Write(bufs, []regs.Cmd{{}})
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Write returned before back-pressure was relieved")
	case <-time.After(100 * time.Millisecond):
	}

	sim.ConsumeCommands(2)
	sim.RaisePongAsync()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write never unblocked after RaisePongAsync")
	}
}

func TestSetupBuffersCreatesAndCollectsChangeRecord(t *testing.T) {
	obs := &testObserver{}
	dev, sim := newTestDevice(t, 16, obs)

	var bufs [constants.NumUserBufs]*handle.Handle
	surfA := newSurfaceHandle(t, 64, 64)
	bufs[constants.DstSurfaceBufIdx] = surfA

	_, err := dev.Write(bufs, []regs.Cmd{{}})
	require.NoError(t, err)
	assert.Equal(t, 0, obs.recordsCreated, "binding into an empty slot displaces nothing")

	surfB := newSurfaceHandle(t, 64, 64)
	bufs[constants.DstSurfaceBufIdx] = surfB
	_, err = dev.Write(bufs, []regs.Cmd{{}})
	require.NoError(t, err)
	assert.Equal(t, 1, obs.recordsCreated)
	assert.Equal(t, 1, dev.changes.Len())

	sim.CompleteFence(2)
	_, err = dev.Write(bufs, []regs.Cmd{{}})
	require.NoError(t, err)

	assert.Equal(t, 0, dev.changes.Len())
	assert.Equal(t, 1, obs.recordsCollected)
	assert.Equal(t, uint64(1), obs.handlesCollected)
}

func TestTranslateCmdSetsInterlockFlag(t *testing.T) {
	c := &uapi.Cmd{Type: uapi.CmdTypeFillRect, FillRect: &uapi.FillRect{
		Width: 8, Height: 8, PosX: 1, PosY: 2, FillColor: 9,
	}}

	var bound [constants.NumUserBufs]*handle.Handle

	plain := TranslateCmd(c, false, bound)
	assert.Equal(t, uint32(0), plain[0]&regs.CmdFlagInterlock)

	locked := TranslateCmd(c, true, bound)
	assert.Equal(t, uint32(regs.CmdFlagInterlock), locked[0]&regs.CmdFlagInterlock)
	assert.Equal(t, uint32(regs.CmdTypeFillRect), locked[0]&regs.CmdTypeMask)
}

func TestTranslateCmdDrawColumnPacksUStartUStepAndTextureLimit(t *testing.T) {
	texture := newBufferHandle(t, 4160) // (4160-1)>>6 == 64

	var bound [constants.NumUserBufs]*handle.Handle
	bound[constants.TextureBufIdx] = texture

	c := &uapi.Cmd{Type: uapi.CmdTypeDrawColumn, DrawColumn: &uapi.DrawColumn{
		Flags:          uapi.FlagTranslate | uapi.FlagColormap,
		PosX:           10,
		PosAY:          20,
		PosBY:          30,
		ColormapIdx:    5,
		TranslationIdx: 6,
		TextureHeight:  128,
		TextureOffset:  256,
		UStart:         0x1000,
		UStep:          0x0100,
	}}

	cmd := TranslateCmd(c, false, bound)
	assert.Equal(t, uint32(0x1000), cmd[4])
	assert.Equal(t, uint32(0x0100), cmd[5])
	assert.Equal(t, regs.W3(10, 20), cmd[2])
	assert.Equal(t, regs.W3(10, 30), cmd[3])
	assert.Equal(t, regs.W7B(64, 128), cmd[7])
	assert.Equal(t, regs.W1(6, 5), cmd[1])
}

func TestTranslateCmdDrawSpanPacksUVStartStep(t *testing.T) {
	var bound [constants.NumUserBufs]*handle.Handle

	c := &uapi.Cmd{Type: uapi.CmdTypeDrawSpan, DrawSpan: &uapi.DrawSpan{
		PosY:    5,
		PosAX:   1,
		PosBX:   2,
		FlatIdx: 3,
		UStart:  0x10,
		VStart:  0x20,
		UStep:   0x30,
		VStep:   0x40,
	}}

	cmd := TranslateCmd(c, false, bound)
	assert.Equal(t, uint32(0x10), cmd[4])
	assert.Equal(t, uint32(0x30), cmd[5])
	assert.Equal(t, uint32(0x20), cmd[6])
	assert.Equal(t, uint32(0x40), cmd[7])
}
