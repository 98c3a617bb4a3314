package line

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/itohio/gohx711/pkg/protocol"
)

// rpioPin is the part of rpio.Pin the line drives.
type rpioPin interface {
	High()
	Low()
	Read() rpio.State
}

// RPIO drives the HX711 through Raspberry Pi GPIO memory using go-rpio.
// Pins use BCM numbering.
type RPIO struct {
	data   rpioPin
	clock  rpioPin
	unmap  func() error
	labels string
}

var _ protocol.Line = (*RPIO)(nil)

// OpenRPIO maps GPIO memory and configures the pins. Close unmaps it again.
func OpenRPIO(data, clock int) (*RPIO, error) {
	if data < 0 || clock < 0 || data == clock {
		return nil, fmt.Errorf("invalid pins: data=%d clock=%d", data, clock)
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open gpio memory: %w", err)
	}

	dataPin, clockPin := rpio.Pin(data), rpio.Pin(clock)
	clockPin.Output()
	clockPin.Low()
	dataPin.Input()
	return &RPIO{
		data:   dataPin,
		clock:  clockPin,
		unmap:  rpio.Close,
		labels: fmt.Sprintf("data:%d, clock:%d", data, clock),
	}, nil
}

func (r *RPIO) SetClock(high bool) error {
	if high {
		r.clock.High()
	} else {
		r.clock.Low()
	}
	return nil
}

func (r *RPIO) ReadData() (bool, error) {
	return r.data.Read() == rpio.High, nil
}

// Close unmaps GPIO memory. The clock keeps its level, so a chip that was
// powered down stays powered down.
func (r *RPIO) Close() error {
	return r.unmap()
}

func (r *RPIO) String() string {
	return "rpio{" + r.labels + "}"
}
