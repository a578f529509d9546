package harddoom2

import "github.com/kbr-/harddoom2/internal/mmio"

// NewSimulatedDevice opens a Device backed by an in-process
// mmio.Simulator instead of a real mapped register file, for tests
// that need a full device without real hardware. The Simulator is
// returned alongside the Device so tests can drive ConsumeCommands/
// RaisePongAsync/CompleteFence directly.
func NewSimulatedDevice(params DeviceParams) (*Device, *mmio.Simulator, error) {
	sim := mmio.NewSimulator()
	dev, err := Open(params, &Options{Registers: sim})
	if err != nil {
		return nil, nil, err
	}
	return dev, sim, nil
}
