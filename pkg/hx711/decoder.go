package hx711

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/itohio/gohx711/pkg/protocol"
)

// PowerSettle is how long the clock is held after a power transition. The
// chip powers down once PD_SCK stays high for more than 60us.
const PowerSettle = 100 * time.Microsecond

// Decoder pulls raw conversions out of an HX711 or something pretending to
// be one. Decoders do not lock; the Driver serializes every call.
type Decoder interface {
	// Read blocks until a conversion is ready and returns its three bytes in
	// acquisition order, assembled with the given bit order. pulses extra
	// clock pulses follow the data bits and select the next conversion's gain.
	Read(ctx context.Context, pulses int, bits protocol.Order) ([protocol.FrameBytes]byte, error)
	PowerDown(ctx context.Context) error
	// PowerUp wakes the chip. It always resumes at channel A, gain 128.
	PowerUp(ctx context.Context) error
	Close() error
}

// Resetter is implemented by decoders that reset without a power cycle.
type Resetter interface {
	Reset(ctx context.Context) error
}

var (
	_ Decoder  = (*LineDecoder)(nil)
	_ Decoder  = (*Mock)(nil)
	_ Decoder  = (*Bridge)(nil)
	_ Resetter = (*Mock)(nil)
)

// LineDecoder bit-bangs the HX711 over a protocol.Line.
type LineDecoder struct {
	line  protocol.Line
	poll  time.Duration
	sleep func(time.Duration)
}

// LineOption configures a LineDecoder.
type LineOption func(*LineDecoder)

// WithPoll sets the delay between readiness polls. 0, the default, spins.
func WithPoll(d time.Duration) LineOption {
	return func(l *LineDecoder) { l.poll = d }
}

// WithSleep replaces time.Sleep for power transition delays.
func WithSleep(sleep func(time.Duration)) LineOption {
	return func(l *LineDecoder) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// NewLineDecoder drives the clock low and returns a decoder for l.
func NewLineDecoder(l protocol.Line, opts ...LineOption) (*LineDecoder, error) {
	d := &LineDecoder{
		line:  l,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := l.SetClock(false); err != nil {
		return nil, fmt.Errorf("failed to lower clock: %w", err)
	}
	return d, nil
}

func (d *LineDecoder) Read(ctx context.Context, pulses int, bits protocol.Order) ([protocol.FrameBytes]byte, error) {
	return protocol.ReadFrame(ctx, d.line, protocol.Frame{
		Pulses:   pulses,
		BitOrder: bits,
		Poll:     d.poll,
	})
}

// PowerDown raises the clock and holds it past the power down threshold.
func (d *LineDecoder) PowerDown(ctx context.Context) error {
	if err := d.line.SetClock(false); err != nil {
		return fmt.Errorf("failed to lower clock: %w", err)
	}
	if err := d.line.SetClock(true); err != nil {
		return fmt.Errorf("failed to raise clock: %w", err)
	}
	d.sleep(PowerSettle)
	return nil
}

// PowerUp lowers the clock and gives the chip time to wake.
func (d *LineDecoder) PowerUp(ctx context.Context) error {
	if err := d.line.SetClock(false); err != nil {
		return fmt.Errorf("failed to lower clock: %w", err)
	}
	d.sleep(PowerSettle)
	return nil
}

// Close closes the line if it holds resources.
func (d *LineDecoder) Close() error {
	if c, ok := d.line.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
