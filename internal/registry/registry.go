// Package registry implements the fixed-size device table the
// original driver keeps as a static array indexed by minor number
// (devices[DEVICES_LIMIT]), together with the free-number bitmap used
// by alloc_dev_number. Grounded on hd2.c's device enumeration path.
package registry

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/kbr-/harddoom2/internal/constants"
)

// ErrNoSpace is returned when every device slot is in use.
var ErrNoSpace = errors.New("registry: device table full")

// ErrBadNumber is returned for an out-of-range or unassigned device
// number.
var ErrBadNumber = errors.New("registry: device number not in range or not in use")

// Registry is a fixed-size table mapping a device number to an
// arbitrary per-device value (the root package's *Device, in practice), one mutex
// guarding the whole table exactly as alloc_dev_number/free_dev_number
// do under a single lock.
type Registry struct {
	mu      sync.Mutex
	devices [constants.DevicesLimit]any
	inUse   [constants.DevicesLimit]bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Alloc finds the lowest free device number, associates it with dev,
// and returns it. Mirrors alloc_dev_number's linear scan.
func (r *Registry) Alloc(dev any) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < constants.DevicesLimit; i++ {
		if !r.inUse[i] {
			r.inUse[i] = true
			r.devices[i] = dev
			return i, nil
		}
	}
	return 0, ErrNoSpace
}

// Free releases number, making it available for reuse.
func (r *Registry) Free(number int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if number < 0 || number >= constants.DevicesLimit || !r.inUse[number] {
		return ErrBadNumber
	}
	r.inUse[number] = false
	r.devices[number] = nil
	return nil
}

// Get returns the value registered at number.
func (r *Registry) Get(number int) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if number < 0 || number >= constants.DevicesLimit || !r.inUse[number] {
		return nil, ErrBadNumber
	}
	return r.devices[number], nil
}
