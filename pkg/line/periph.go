package line

import (
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/itohio/gohx711/pkg/protocol"
)

// Periph drives the HX711 through periph.io GPIO pins.
type Periph struct {
	data  gpio.PinIO
	clock gpio.PinIO
}

var _ protocol.Line = (*Periph)(nil)

// OpenPeriph initializes the periph.io host drivers and opens the pins by
// name or number, e.g. "GPIO5" or "5".
func OpenPeriph(data, clock string) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	dataPin := gpioreg.ByName(data)
	if dataPin == nil {
		return nil, fmt.Errorf("failed to find data pin %q", data)
	}
	clockPin := gpioreg.ByName(clock)
	if clockPin == nil {
		return nil, fmt.Errorf("failed to find clock pin %q", clock)
	}

	return NewPeriph(dataPin, clockPin)
}

// NewPeriph configures data as an input and clock as an output driven low.
func NewPeriph(data, clock gpio.PinIO) (*Periph, error) {
	if err := clock.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to configure clock pin %s: %w", clock, err)
	}
	if err := data.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to configure data pin %s: %w", data, err)
	}
	return &Periph{data: data, clock: clock}, nil
}

func (p *Periph) SetClock(high bool) error {
	return p.clock.Out(gpio.Level(high))
}

func (p *Periph) ReadData() (bool, error) {
	return bool(p.data.Read()), nil
}

// Close halts both pins.
func (p *Periph) Close() error {
	return multierr.Combine(p.clock.Halt(), p.data.Halt())
}

func (p *Periph) String() string {
	return fmt.Sprintf("periph{data:%s, clock:%s}", p.data, p.clock)
}
