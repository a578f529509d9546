// Package counter reconstructs a monotone 64-bit device counter from the
// 32-bit hardware register HardDoom II exposes (FENCE_COUNTER, and the
// host-side write_idx/batch_cnt counters that track it).
package counter

// Counter is a monotone 64-bit value. The zero Counter is the device's
// initial state (batch_cnt == 0, fence_cnt == 0 after reset).
type Counter uint64

// Make builds a Counter from an explicit upper/lower half pair.
func Make(upper, lower uint32) Counter {
	return Counter(uint64(upper)<<32 | uint64(lower))
}

// Lower returns the low 32 bits, i.e. the value a 32-bit hardware
// register holding this counter would read back.
func (c Counter) Lower() uint32 {
	return uint32(c)
}

// Upper returns the high 32 bits (the wraparound count).
func (c Counter) Upper() uint32 {
	return uint32(c >> 32)
}

// GE reports whether c is greater than or equal to other.
func (c Counter) GE(other Counter) bool {
	return c >= other
}

// Incr returns c+1.
func (c Counter) Incr() Counter {
	return c + 1
}

// Reconstruct folds a freshly-read 32-bit register value into the
// previous 64-bit counter, detecting wraparound: if the new lower half
// is less than the previously observed lower half, the register must
// have wrapped past 2^32 since the last read, so the upper half is
// bumped.
func Reconstruct(prev Counter, curr32 uint32) Counter {
	upper := prev.Upper()
	if prev.Lower() > curr32 {
		upper++
	}
	return Make(upper, curr32)
}
