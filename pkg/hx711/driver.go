// Package hx711 drives an HX711 load cell amplifier: it reads conversions
// through a Decoder, tracks the gain/channel the chip is set to, reduces
// repeated conversions and applies per channel calibration.
package hx711

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/itohio/gohx711/pkg/protocol"
	"github.com/itohio/gohx711/pkg/sample"
)

const (
	// DefaultTimes is the number of conversions Value and Weight reduce.
	DefaultTimes = 3
	// DefaultTareTimes is the number of conversions a tare reduces.
	DefaultTareTimes = 15
	// DefaultReadyTimeout bounds the wait for a single conversion.
	DefaultReadyTimeout = time.Second
)

// State is a copy of the driver configuration.
type State struct {
	Gain         protocol.Gain
	ByteOrder    protocol.Order
	BitOrder     protocol.Order
	Strategy     sample.Strategy
	ReadyTimeout time.Duration
	A            Calibration
	B            Calibration
	LastRaw      int32
	Closed       bool
}

// Driver is safe for concurrent use. A single mutex serializes every
// conversion, power transition and configuration change, so a clock pulse
// sequence is never interleaved with another and mutators never race reads.
type Driver struct {
	mu  sync.Mutex
	dec Decoder
	log zerolog.Logger

	gain      protocol.Gain
	gainA     protocol.Gain // gain channel A reads use while the chip is on B
	byteOrder protocol.Order
	bitOrder  protocol.Order
	strategy  sample.Strategy
	timeout   time.Duration
	cal       [2]Calibration
	last      int32
	closed    bool
}

// New configures a driver and performs one discarded conversion so that the
// next conversion uses the selected gain.
func New(ctx context.Context, dec Decoder, opts ...Option) (*Driver, error) {
	if dec == nil {
		return nil, fmt.Errorf("%w: nil decoder", ErrInvalidConfiguration)
	}

	d := &Driver{
		dec:       dec,
		log:       zerolog.Nop(),
		gain:      protocol.Gain128,
		gainA:     protocol.Gain128,
		byteOrder: protocol.MSB,
		bitOrder:  protocol.MSB,
		strategy:  sample.Median,
		timeout:   DefaultReadyTimeout,
		cal:       [2]Calibration{NewCalibration(), NewCalibration()},
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.readLocked(ctx); err != nil {
		return nil, fmt.Errorf("failed to select gain %s: %w", d.gain, err)
	}

	d.log.Debug().
		Stringer("gain", d.gain).
		Stringer("byte_format", d.byteOrder).
		Stringer("bit_format", d.bitOrder).
		Msg("hx711 ready")
	return d, nil
}

// readLocked clocks out one conversion and returns its bytes in big-endian
// order. Caller holds mu.
func (d *Driver) readLocked(ctx context.Context) ([protocol.FrameBytes]byte, error) {
	var data [protocol.FrameBytes]byte
	if d.closed {
		return data, ErrClosed
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	data, err := d.dec.Read(ctx, d.gain.Pulses(), d.bitOrder)
	if err != nil {
		return data, fmt.Errorf("failed to read conversion: %w", err)
	}
	return protocol.Arrange(data, d.byteOrder), nil
}

func (d *Driver) readRawLocked(ctx context.Context) (int32, error) {
	data, err := d.readLocked(ctx)
	if err != nil {
		return 0, err
	}
	v := protocol.Decode24(protocol.Join(data))
	d.last = v
	return v, nil
}

// selectGainLocked stores g and discards one conversion. The stored gain is
// rolled back if the discard read fails.
func (d *Driver) selectGainLocked(ctx context.Context, g protocol.Gain) error {
	if g == d.gain {
		return nil
	}

	prev, prevA := d.gain, d.gainA
	d.gain = g
	if g.Channel() == protocol.ChannelA {
		d.gainA = g
	}
	if _, err := d.readLocked(ctx); err != nil {
		d.gain, d.gainA = prev, prevA
		return fmt.Errorf("failed to select gain %s: %w", g, err)
	}

	d.log.Debug().Stringer("from", prev).Stringer("to", g).Msg("gain changed")
	return nil
}

// ReadRawBytes returns the three bytes of one conversion, byte order applied.
func (d *Driver) ReadRawBytes(ctx context.Context) ([protocol.FrameBytes]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readLocked(ctx)
}

// ReadRaw returns one signed conversion from the current channel.
func (d *Driver) ReadRaw(ctx context.Context) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRawLocked(ctx)
}

// LastRaw returns the most recent conversion returned by a read.
func (d *Driver) LastRaw() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// ReadAverage reads times conversions from the current channel: one is
// returned as is, 2 to 4 give the median and 5 or more the mean with the
// top and bottom fifth dropped.
func (d *Driver) ReadAverage(ctx context.Context, times int) (float64, error) {
	return d.readReduced(ctx, sample.Auto, times)
}

// ReadMedian returns the median of times conversions from the current channel.
func (d *Driver) ReadMedian(ctx context.Context, times int) (float64, error) {
	return d.readReduced(ctx, sample.Median, times)
}

func (d *Driver) readReduced(ctx context.Context, s sample.Strategy, times int) (float64, error) {
	if err := checkTimes(times); err != nil {
		return 0, err
	}
	values, err := sample.Collect(times, func() (int32, error) {
		return d.ReadRaw(ctx)
	})
	if err != nil {
		return 0, err
	}
	return sample.Reduce(s, values)
}

func checkTimes(times int) error {
	if times <= 0 {
		return fmt.Errorf("%w: %w, got %d", ErrInvalidArgument, sample.ErrInvalidCount, times)
	}
	return nil
}

// collect reads times conversions from ch. When the chip is already on ch
// the lock is taken once per conversion. Otherwise it is held across the
// switch to ch, every conversion and the switch back, so no other caller can
// observe a conversion from the wrong channel.
func (d *Driver) collect(ctx context.Context, ch protocol.Channel, times int) ([]int32, error) {
	if err := checkTimes(times); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.gain.Channel() != ch {
		defer d.mu.Unlock()
		return d.collectSwitchedLocked(ctx, ch, times)
	}
	d.mu.Unlock()

	return sample.Collect(times, func() (int32, error) {
		return d.readChannel(ctx, ch)
	})
}

// readChannel reads one conversion from ch. If the gain was moved to the
// other channel since the caller looked, it switches for this one read.
func (d *Driver) readChannel(ctx context.Context, ch protocol.Channel) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gain.Channel() == ch {
		return d.readRawLocked(ctx)
	}

	values, err := d.collectSwitchedLocked(ctx, ch, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// collectSwitchedLocked switches to ch, reads times conversions and restores
// the previous gain. Caller holds mu.
func (d *Driver) collectSwitchedLocked(ctx context.Context, ch protocol.Channel, times int) ([]int32, error) {
	prev := d.gain
	target := protocol.Gain32
	if ch == protocol.ChannelA {
		target = d.gainA
	}
	if err := d.selectGainLocked(ctx, target); err != nil {
		return nil, err
	}

	values, err := sample.Collect(times, func() (int32, error) {
		return d.readRawLocked(ctx)
	})
	if rerr := d.selectGainLocked(ctx, prev); rerr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to restore gain: %w", rerr))
	}
	if err != nil {
		return nil, err
	}
	return values, nil
}

// measure reduces times conversions from ch and returns them together with
// the channel calibration in effect once they were taken.
func (d *Driver) measure(ctx context.Context, ch protocol.Channel, times int, s sample.Strategy) (float64, Calibration, error) {
	values, err := d.collect(ctx, ch, times)
	if err != nil {
		return 0, Calibration{}, err
	}
	raw, err := sample.Reduce(s, values)
	if err != nil {
		return 0, Calibration{}, err
	}

	d.mu.Lock()
	cal := d.cal[ch]
	d.mu.Unlock()
	return raw, cal, nil
}

func (d *Driver) currentStrategy() sample.Strategy {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.strategy
}

func (d *Driver) value(ctx context.Context, ch protocol.Channel, times int) (float64, error) {
	raw, cal, err := d.measure(ctx, ch, times, d.currentStrategy())
	if err != nil {
		return 0, err
	}
	return cal.Value(raw), nil
}

func (d *Driver) weight(ctx context.Context, ch protocol.Channel, times int) (float64, error) {
	raw, cal, err := d.measure(ctx, ch, times, d.currentStrategy())
	if err != nil {
		return 0, err
	}
	return cal.Weight(raw), nil
}

// Value returns the offset corrected reading of channel A.
func (d *Driver) Value(ctx context.Context, times int) (float64, error) {
	return d.ValueA(ctx, times)
}

// ValueA returns the offset corrected reading of channel A.
func (d *Driver) ValueA(ctx context.Context, times int) (float64, error) {
	return d.value(ctx, protocol.ChannelA, times)
}

// ValueB switches the chip to channel B for the reading and back afterwards.
func (d *Driver) ValueB(ctx context.Context, times int) (float64, error) {
	return d.value(ctx, protocol.ChannelB, times)
}

// Weight returns the calibrated reading of channel A.
func (d *Driver) Weight(ctx context.Context, times int) (float64, error) {
	return d.WeightA(ctx, times)
}

// WeightA returns the calibrated reading of channel A.
func (d *Driver) WeightA(ctx context.Context, times int) (float64, error) {
	return d.weight(ctx, protocol.ChannelA, times)
}

// WeightB returns the calibrated reading of channel B, switching to it and back.
func (d *Driver) WeightB(ctx context.Context, times int) (float64, error) {
	return d.weight(ctx, protocol.ChannelB, times)
}

// Tare stores the current channel A reading as its offset and returns it.
func (d *Driver) Tare(ctx context.Context, times int) (float64, error) {
	return d.TareA(ctx, times)
}

// TareA stores the current channel A reading as its offset.
func (d *Driver) TareA(ctx context.Context, times int) (float64, error) {
	return d.tare(ctx, protocol.ChannelA, times)
}

// TareB stores the current channel B reading as its offset.
func (d *Driver) TareB(ctx context.Context, times int) (float64, error) {
	return d.tare(ctx, protocol.ChannelB, times)
}

// tare leaves the reference unit alone: the offset is a raw value.
func (d *Driver) tare(ctx context.Context, ch protocol.Channel, times int) (float64, error) {
	raw, _, err := d.measure(ctx, ch, times, sample.Auto)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.cal[ch].Offset = raw
	d.mu.Unlock()

	d.log.Info().Stringer("channel", ch).Float64("offset", raw).Int("times", times).Msg("tare")
	return raw, nil
}

// Calibrate measures a known load on ch and stores the reference unit that
// converts it to knownWeight. The channel must have been tared first.
func (d *Driver) Calibrate(ctx context.Context, ch protocol.Channel, knownWeight float64, times int) (float64, error) {
	if err := validChannel(ch); err != nil {
		return 0, err
	}
	if knownWeight == 0 || math.IsNaN(knownWeight) || math.IsInf(knownWeight, 0) {
		return 0, fmt.Errorf("%w: known weight %v", ErrInvalidArgument, knownWeight)
	}

	raw, cal, err := d.measure(ctx, ch, times, sample.Auto)
	if err != nil {
		return 0, err
	}
	unit := cal.Value(raw) / knownWeight
	if err := ValidateReferenceUnit(unit); err != nil {
		return 0, fmt.Errorf("%w: no load detected on channel %s", ErrInvalidArgument, ch)
	}

	d.mu.Lock()
	d.cal[ch].ReferenceUnit = unit
	d.mu.Unlock()

	d.log.Info().
		Stringer("channel", ch).
		Float64("known_weight", knownWeight).
		Float64("reference_unit", unit).
		Msg("calibrated")
	return unit, nil
}

// SetGain selects 128 or 64 on channel A or 32 on channel B. One conversion
// is discarded so the next read reflects the new gain. An invalid gain
// leaves the driver unchanged.
func (d *Driver) SetGain(ctx context.Context, gain int) error {
	g, err := protocol.ParseGain(gain)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.selectGainLocked(ctx, g)
}

// Gain returns the selected gain: 128, 64 or 32.
func (d *Driver) Gain() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.gain)
}

// SetReadingFormat sets the byte and bit assembly order. Both are applied or
// neither is.
func (d *Driver) SetReadingFormat(byteFormat, bitFormat string) error {
	byteOrder, bitOrder, err := parseFormat(byteFormat, bitFormat)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.byteOrder, d.bitOrder = byteOrder, bitOrder
	return nil
}

// SetStrategy sets how Value and Weight reduce their samples.
func (d *Driver) SetStrategy(s sample.Strategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strategy = s
}

func (d *Driver) setOffset(ch protocol.Channel, v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cal[ch].Offset = v
}

func (d *Driver) offset(ch protocol.Channel) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal[ch].Offset
}

func (d *Driver) SetOffset(v float64) { d.setOffset(protocol.ChannelA, v) }
func (d *Driver) SetOffsetA(v float64) { d.setOffset(protocol.ChannelA, v) }
func (d *Driver) SetOffsetB(v float64) { d.setOffset(protocol.ChannelB, v) }

func (d *Driver) Offset() float64 { return d.offset(protocol.ChannelA) }
func (d *Driver) OffsetA() float64 { return d.offset(protocol.ChannelA) }
func (d *Driver) OffsetB() float64 { return d.offset(protocol.ChannelB) }

func (d *Driver) setReferenceUnit(ch protocol.Channel, v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal[ch].SetReferenceUnit(v)
}

func (d *Driver) referenceUnit(ch protocol.Channel) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal[ch].ReferenceUnit
}

// SetReferenceUnit sets the channel A reference unit. 0 is rejected with
// ErrInvalidConfiguration and the previous value kept.
func (d *Driver) SetReferenceUnit(v float64) error { return d.setReferenceUnit(protocol.ChannelA, v) }
func (d *Driver) SetReferenceUnitA(v float64) error { return d.setReferenceUnit(protocol.ChannelA, v) }
func (d *Driver) SetReferenceUnitB(v float64) error { return d.setReferenceUnit(protocol.ChannelB, v) }

func (d *Driver) ReferenceUnit() float64 { return d.referenceUnit(protocol.ChannelA) }
func (d *Driver) ReferenceUnitA() float64 { return d.referenceUnit(protocol.ChannelA) }
func (d *Driver) ReferenceUnitB() float64 { return d.referenceUnit(protocol.ChannelB) }

// PowerDown holds the clock high until the chip powers down.
func (d *Driver) PowerDown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.powerDownLocked(ctx)
}

func (d *Driver) powerDownLocked(ctx context.Context) error {
	if err := d.dec.PowerDown(ctx); err != nil {
		return fmt.Errorf("failed to power down: %w", err)
	}
	d.log.Debug().Msg("powered down")
	return nil
}

// PowerUp wakes the chip. It resumes at 128/A, so when another gain is
// selected one conversion is discarded to get back to it.
func (d *Driver) PowerUp(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.powerUpLocked(ctx)
}

func (d *Driver) powerUpLocked(ctx context.Context) error {
	if err := d.dec.PowerUp(ctx); err != nil {
		return fmt.Errorf("failed to power up: %w", err)
	}
	d.log.Debug().Stringer("gain", d.gain).Msg("powered up")

	if d.gain == protocol.Gain128 {
		return nil
	}
	if _, err := d.readLocked(ctx); err != nil {
		return fmt.Errorf("failed to restore gain %s: %w", d.gain, err)
	}
	return nil
}

// Reset resets the decoder if it knows how, otherwise power cycles the chip.
func (d *Driver) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	if r, ok := d.dec.(Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset: %w", err)
		}
		return nil
	}
	if err := d.powerDownLocked(ctx); err != nil {
		return err
	}
	return d.powerUpLocked(ctx)
}

// Snapshot returns a copy of the current configuration.
func (d *Driver) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Gain:         d.gain,
		ByteOrder:    d.byteOrder,
		BitOrder:     d.bitOrder,
		Strategy:     d.strategy,
		ReadyTimeout: d.timeout,
		A:            d.cal[protocol.ChannelA],
		B:            d.cal[protocol.ChannelB],
		LastRaw:      d.last,
		Closed:       d.closed,
	}
}

// Close powers the chip down and closes the decoder. Later calls do nothing.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	timeout := d.timeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return multierr.Combine(
		d.powerDownLocked(ctx),
		d.dec.Close(),
	)
}
