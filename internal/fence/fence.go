// Package fence implements the fence engine: the bridge between the
// device's 32-bit FENCE_COUNTER/FENCE_WAIT registers and the 64-bit
// host-side counters used everywhere else in this driver. Grounded on
// fence.c.
package fence

import (
	"sync"
	"time"

	"github.com/kbr-/harddoom2/internal/counter"
	"github.com/kbr-/harddoom2/internal/logging"
	"github.com/kbr-/harddoom2/internal/mmio"
	"github.com/kbr-/harddoom2/internal/regs"
)

// Observer receives notifications about fence waits for metrics
// collection.
type Observer interface {
	ObserveFenceWait(latencyNs uint64, blocked bool)
}

type noopObserver struct{}

func (noopObserver) ObserveFenceWait(uint64, bool) {}

// Engine tracks the device's fence progress and lets callers block
// until a target batch count has retired.
type Engine struct {
	regs mmio.Registers
	log  *logging.Logger
	obs  Observer

	mu            sync.Mutex
	lastFenceCnt  counter.Counter
	lastFenceWait counter.Counter
	cond          *sync.Cond
}

// New creates an Engine bound to the given register file. log and obs
// may be nil, in which case logging.Default() and a no-op observer are
// used respectively.
func New(r mmio.Registers, log *logging.Logger, obs Observer) *Engine {
	if log == nil {
		log = logging.Default()
	}
	if obs == nil {
		obs = noopObserver{}
	}
	e := &Engine{regs: r, log: log, obs: obs}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// updateLastFenceCnt reads FENCE_COUNTER and folds it into the 64-bit
// counter, detecting wraparound exactly as _update_last_fence_cnt does.
// Caller must hold e.mu.
func (e *Engine) updateLastFenceCntLocked() {
	curr32 := e.regs.Read32(regs.FenceCounter)
	e.lastFenceCnt = counter.Reconstruct(e.lastFenceCnt, curr32)
}

// Poll returns the current fence counter, refreshing it from the
// hardware register first (get_curr_fence_cnt).
func (e *Engine) Poll() counter.Counter {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateLastFenceCntLocked()
	return e.lastFenceCnt
}

// bumpFenceWait programs FENCE_WAIT to cnt if cnt is past the last
// value armed, so the device raises FENCE once it reaches cnt. Caller
// must hold e.mu.
func (e *Engine) bumpFenceWaitLocked(cnt counter.Counter) {
	if cnt <= e.lastFenceWait {
		return
	}
	e.regs.Write32(regs.FenceWait, cnt.Lower())
	e.lastFenceWait = cnt
}

// Wait blocks until the fence counter reaches at least target,
// mirroring wait_for_fence_cnt's fast-path/arm/block sequence.
func (e *Engine) Wait(target counter.Counter) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.updateLastFenceCntLocked()
	if e.lastFenceCnt.GE(target) {
		e.obs.ObserveFenceWait(0, false)
		return
	}

	e.bumpFenceWaitLocked(target)
	e.updateLastFenceCntLocked()
	if e.lastFenceCnt.GE(target) {
		e.obs.ObserveFenceWait(0, false)
		return
	}

	start := time.Now()
	e.log.Debugf("wait for fence: %d", uint64(target))
	for !e.lastFenceCnt.GE(target) {
		e.cond.Wait()
		e.updateLastFenceCntLocked()
	}
	e.log.Debugf("wait for fence: %d finished", uint64(target))
	e.obs.ObserveFenceWait(uint64(time.Since(start)), true)
}

// OnFenceInterrupt is invoked by the ring/interrupt core when the
// device raises FENCE; it wakes every waiter so each can recheck its
// own target.
func (e *Engine) OnFenceInterrupt() {
	e.mu.Lock()
	e.updateLastFenceCntLocked()
	e.mu.Unlock()
	e.cond.Broadcast()
}
