// Package harddoom2 is a host-side driver for the HardDoom II 2D
// graphics accelerator: DMA buffer and ring management, per-context
// command validation, and the fence-based synchronization needed to
// safely read back a surface the device is still drawing into.
package harddoom2

import (
	"sync"
	"sync/atomic"

	"github.com/kbr-/harddoom2/internal/fence"
	"github.com/kbr-/harddoom2/internal/logging"
	"github.com/kbr-/harddoom2/internal/mmio"
	"github.com/kbr-/harddoom2/internal/registry"
	"github.com/kbr-/harddoom2/internal/ring"
)

// devices is the global device table, mirroring the original driver's
// static devices[DEVICES_LIMIT] array and the minor-number allocator
// built on top of it.
var devices = registry.New()

// Device is one opened HardDoom II accelerator: its register file, its
// ring/fence/interrupt core, and the bookkeeping shared by every
// Context opened against it.
type Device struct {
	number int
	regs   mmio.Registers
	ring   *ring.Device
	fence  *fence.Engine
	log    *logging.Logger

	metrics  *Metrics
	observer Observer

	removed   int32
	closeOnce sync.Once
}

// DeviceParams configures a Device at Open time.
type DeviceParams struct {
	// RingSlots is the number of 32-byte command slots in the device
	// ring. Zero selects DefaultRingSlots.
	RingSlots int
}

// DefaultParams returns the default device parameters.
func DefaultParams() DeviceParams {
	return DeviceParams{RingSlots: DefaultRingSlots}
}

// Options carries optional collaborators for Open.
type Options struct {
	// Registers is the register-file backend to drive. If nil, Open
	// creates an in-process mmio.Simulator, which is enough to fully
	// exercise the ring/fence/validator/submission logic without real
	// hardware attached.
	Registers mmio.Registers

	// Logger receives debug/info/warn/error messages. If nil,
	// logging.Default() is used.
	Logger *logging.Logger

	// Observer receives metrics events. If nil, a MetricsObserver
	// backed by a fresh Metrics is installed.
	Observer Observer
}

// Open brings up a Device: resets the register file to a clean state,
// allocates its command ring, and assigns it a device number from the
// global table.
func Open(params DeviceParams, options *Options) (*Device, error) {
	if options == nil {
		options = &Options{}
	}

	log := options.Logger
	if log == nil {
		log = logging.Default()
	}

	metrics := NewMetrics()
	var observer Observer = NoOpObserver{}
	if options.Observer != nil {
		observer = options.Observer
	} else {
		observer = NewMetricsObserver(metrics)
	}

	r := options.Registers
	if r == nil {
		r = mmio.NewSimulator()
	}

	ringSlots := params.RingSlots
	if ringSlots == 0 {
		ringSlots = DefaultRingSlots
	}

	dev := &Device{regs: r, metrics: metrics, observer: observer}

	number, err := devices.Alloc(dev)
	if err != nil {
		return nil, NewError("Open", CodeNoSpace, "device table full")
	}
	dev.number = number
	log = log.WithDevice(number)

	fenceEngine := fence.New(r, log, observer)
	ringDev, err := ring.New(r, fenceEngine, log, observer, ringSlots)
	if err != nil {
		devices.Free(number)
		return nil, WrapError("Open", err)
	}
	dev.ring = ringDev
	dev.fence = fenceEngine
	dev.log = log

	return dev, nil
}

// Number returns the device's assigned slot in the global device
// table, analogous to a minor number.
func (d *Device) Number() int {
	return d.number
}

// Metrics returns the device's built-in metrics collector. Its counters
// are fed only when Open installed the default MetricsObserver; when
// the caller supplied its own Observer they stay at zero.
func (d *Device) Metrics() *Metrics {
	return d.metrics
}

// NewContext opens a fresh context against the device: an independent
// seven-slot bound-buffer set, exactly like opening the character
// device file a second time.
func (d *Device) NewContext() *Context {
	return &Context{dev: d}
}

// Remove marks the device as hot-removed: every subsequent Context
// operation against it fails with CodeIO instead of touching the
// (possibly gone) register file. There is no real PCI removal path in
// this module; this exists so a test can exercise the behavior a
// surprise unplug would trigger on real hardware.
func (d *Device) Remove() {
	atomic.StoreInt32(&d.removed, 1)
}

// Removed reports whether Remove has been called.
func (d *Device) Removed() bool {
	return atomic.LoadInt32(&d.removed) != 0
}

// Close powers the device off and releases its device-table slot. It
// is safe to call more than once.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.ring.PowerOff()
		if e := devices.Free(d.number); e != nil {
			err = NewDeviceError("Close", d.number, CodeIO, e.Error())
			return
		}
		if e := d.regs.Close(); e != nil {
			err = WrapError("Close", e)
		}
	})
	return err
}
