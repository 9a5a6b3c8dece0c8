package scanner

import (
	"time"

	"github.com/aegisedge/daqdriver/internal/hw/vendor"
	"github.com/aegisedge/daqdriver/internal/ports"
)

// ModbusEnumerator is the concrete default Enumerator: it probes a
// configured list of candidate device locations by attempting to open and
// immediately close a vendor connection, standing in for the real vendor
// system-configuration enumerator spec.md §1 places out of scope (the
// original's ni::NiScanner::getDevices() walks an SDK-provided device list
// instead of dialing candidates, which this driver has no equivalent to
// since it binds to Modbus rather than NI DAQmx).
type ModbusEnumerator struct {
	Candidates []ports.Device
	Timeout    time.Duration
}

func (e *ModbusEnumerator) Enumerate() ([]ports.Device, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	var found []ports.Device
	for _, d := range e.Candidates {
		dev, err := vendor.Open(vendor.DeviceConfig{Location: d.Location, Timeout: timeout})
		if err != nil {
			continue
		}
		_ = dev.Close()
		found = append(found, d)
	}
	return found, nil
}

var _ Enumerator = (*ModbusEnumerator)(nil)
