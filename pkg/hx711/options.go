package hx711

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/itohio/gohx711/pkg/protocol"
	"github.com/itohio/gohx711/pkg/sample"
)

// Option configures a Driver before its first conversion.
type Option func(*Driver) error

// WithGain selects the initial gain: 128 or 64 on channel A, 32 on channel B.
func WithGain(gain int) Option {
	return func(d *Driver) error {
		g, err := protocol.ParseGain(gain)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		d.gain = g
		if g.Channel() == protocol.ChannelA {
			d.gainA = g
		}
		return nil
	}
}

// WithReadingFormat sets the byte and bit assembly order, "MSB" or "LSB".
func WithReadingFormat(byteFormat, bitFormat string) Option {
	return func(d *Driver) error {
		byteOrder, bitOrder, err := parseFormat(byteFormat, bitFormat)
		if err != nil {
			return err
		}
		d.byteOrder, d.bitOrder = byteOrder, bitOrder
		return nil
	}
}

// WithReadyTimeout bounds the wait for each conversion. 0 waits as long as
// the caller's context allows.
func WithReadyTimeout(timeout time.Duration) Option {
	return func(d *Driver) error {
		if timeout < 0 {
			return fmt.Errorf("%w: ready timeout %s", ErrInvalidConfiguration, timeout)
		}
		d.timeout = timeout
		return nil
	}
}

// WithStrategy sets how Value and Weight reduce their samples.
func WithStrategy(s sample.Strategy) Option {
	return func(d *Driver) error {
		d.strategy = s
		return nil
	}
}

// WithCalibration sets the stored offset and reference unit of a channel.
func WithCalibration(ch protocol.Channel, cal Calibration) Option {
	return func(d *Driver) error {
		if err := validChannel(ch); err != nil {
			return err
		}
		if err := cal.Validate(); err != nil {
			return err
		}
		d.cal[ch] = cal
		return nil
	}
}

// WithLogger logs gain changes, tares and power transitions.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Driver) error {
		d.log = log
		return nil
	}
}

func parseFormat(byteFormat, bitFormat string) (protocol.Order, protocol.Order, error) {
	byteOrder, err := protocol.ParseOrder(byteFormat)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: byte format: %w", ErrInvalidConfiguration, err)
	}
	bitOrder, err := protocol.ParseOrder(bitFormat)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bit format: %w", ErrInvalidConfiguration, err)
	}
	return byteOrder, bitOrder, nil
}

func validChannel(ch protocol.Channel) error {
	if ch != protocol.ChannelA && ch != protocol.ChannelB {
		return fmt.Errorf("%w: channel %d", ErrInvalidArgument, int(ch))
	}
	return nil
}
