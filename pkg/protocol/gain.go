package protocol

import "fmt"

// Channel is one of the two HX711 differential inputs.
type Channel int

const (
	ChannelA Channel = iota
	ChannelB
)

func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	default:
		return "(invalid channel)"
	}
}

// Gain selects the amplifier gain and, implicitly, the input channel.
// Channel A supports 128 and 64, channel B is fixed at 32.
type Gain int

const (
	Gain128 Gain = 128
	Gain64  Gain = 64
	Gain32  Gain = 32
)

// ParseGain validates a numeric gain.
func ParseGain(v int) (Gain, error) {
	switch g := Gain(v); g {
	case Gain128, Gain64, Gain32:
		return g, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidGain, v)
	}
}

// GainFromPulses maps a pulse count back to its gain.
func GainFromPulses(p int) (Gain, error) {
	switch p {
	case 1:
		return Gain128, nil
	case 3:
		return Gain64, nil
	case 2:
		return Gain32, nil
	default:
		return 0, fmt.Errorf("%w: %d pulses", ErrInvalidGain, p)
	}
}

// Pulses is the number of clock pulses sent after the 24 data bits to select
// this gain for the next conversion.
func (g Gain) Pulses() int {
	switch g {
	case Gain128:
		return 1
	case Gain64:
		return 3
	case Gain32:
		return 2
	default:
		return 0
	}
}

// Channel returns the input channel the gain reads from.
func (g Gain) Channel() Channel {
	if g == Gain32 {
		return ChannelB
	}
	return ChannelA
}

func (g Gain) String() string {
	return fmt.Sprintf("%d/%s", int(g), g.Channel())
}
