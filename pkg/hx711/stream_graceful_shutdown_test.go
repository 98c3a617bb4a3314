package hx711

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gohx711/pkg/line"
	"github.com/itohio/gohx711/pkg/protocol"
)

// TestStream_GracefulShutdown tests that the readings channel is closed when
// the context is cancelled.
func TestStream_GracefulShutdown(t *testing.T) {
	d, _ := newFakeDriver(t, line.Constant(500), WithCalibration(protocol.ChannelA, Calibration{Offset: 100, ReferenceUnit: 4}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readings, err := d.Stream(ctx, StreamConfig{Interval: 5 * time.Millisecond})
	require.NoError(t, err)

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range readings {
			assert.NoError(t, r.Err)
			assert.Equal(t, protocol.ChannelA, r.Channel)
			assert.Equal(t, 500.0, r.Raw)
			assert.Equal(t, 400.0, r.Value)
			assert.Equal(t, 100.0, r.Weight)
			assert.False(t, r.Timestamp.IsZero())
			received++
			if received >= 3 {
				cancel()
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("readings channel did not close within timeout")
	}

	assert.GreaterOrEqual(t, received, 3)
	_, ok := <-readings
	assert.False(t, ok)
}

// TestStream_ClosedDriver tests that the stream ends once the driver is closed.
func TestStream_ClosedDriver(t *testing.T) {
	d, _ := newFakeDriver(t, perGain)

	readings, err := d.Stream(context.Background(), StreamConfig{
		Channel:  protocol.ChannelB,
		Times:    1,
		Interval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	r := <-readings
	require.NoError(t, r.Err)
	assert.Equal(t, -500.0, r.Weight)

	require.NoError(t, d.Close())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range readings {
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("readings channel did not close after the driver was")
	}
}

func TestStream_InvalidConfig(t *testing.T) {
	d, _ := newFakeDriver(t, nil)

	_, err := d.Stream(context.Background(), StreamConfig{Channel: protocol.Channel(2)})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = d.Stream(context.Background(), StreamConfig{Times: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
