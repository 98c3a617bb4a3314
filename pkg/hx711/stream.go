package hx711

import (
	"context"
	"errors"
	"time"

	"github.com/itohio/gohx711/pkg/protocol"
)

const (
	// DefaultStreamInterval is the period between streamed readings.
	DefaultStreamInterval = 100 * time.Millisecond
	// DefaultStreamBuffer is the capacity of the channel returned by Stream.
	DefaultStreamBuffer = 16
)

// StreamConfig configures Stream.
type StreamConfig struct {
	Channel  protocol.Channel
	Times    int           // Conversions reduced per reading, DefaultTimes if 0
	Interval time.Duration // Period between readings, DefaultStreamInterval if 0
	BufSize  int           // Channel capacity, DefaultStreamBuffer if 0
}

// Reading is one streamed measurement. Err is set when the measurement
// failed; the other fields are then zero except Timestamp and Channel.
type Reading struct {
	Timestamp time.Time
	Channel   protocol.Channel
	Raw       float64 // Reduced conversions before calibration
	Value     float64 // Raw minus offset
	Weight    float64
	Err       error
}

// Stream measures periodically until ctx is done, then closes the returned
// channel. The channel is also closed once the driver is. Readings are
// dropped when the consumer falls behind.
func (d *Driver) Stream(ctx context.Context, cfg StreamConfig) (<-chan Reading, error) {
	if err := validChannel(cfg.Channel); err != nil {
		return nil, err
	}
	if cfg.Times == 0 {
		cfg.Times = DefaultTimes
	}
	if err := checkTimes(cfg.Times); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultStreamInterval
	}
	if cfg.BufSize <= 0 {
		cfg.BufSize = DefaultStreamBuffer
	}

	out := make(chan Reading, cfg.BufSize)
	go d.stream(ctx, cfg, out)
	return out, nil
}

func (d *Driver) stream(ctx context.Context, cfg StreamConfig, out chan<- Reading) {
	defer close(out)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r := Reading{Channel: cfg.Channel}
		raw, cal, err := d.measure(ctx, cfg.Channel, cfg.Times, d.currentStrategy())
		r.Timestamp = time.Now()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return
			}
			r.Err = err
		} else {
			r.Raw = raw
			r.Value = cal.Value(raw)
			r.Weight = cal.Weight(raw)
		}

		select {
		case out <- r:
		case <-ctx.Done():
			return
		default:
			d.log.Warn().Stringer("channel", cfg.Channel).Msg("stream consumer too slow, dropping reading")
		}
	}
}
