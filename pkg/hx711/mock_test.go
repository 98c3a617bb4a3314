package hx711

import (
	"context"
	"math/bits"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gohx711/pkg/protocol"
)

// peakClock returns a clock sitting at the peak of the simulated load curve.
func peakClock() func() time.Time {
	start := time.Unix(1000, 0)
	calls := 0
	return func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(4500 * time.Millisecond)
	}
}

func newTestMock(opts ...MockOption) *Mock {
	cfg := MockConfig{
		SampleRate:    10000,
		Amplitude:     2,
		ReferenceUnit: 1,
		Seed:          1,
	}
	return NewMock(cfg, append([]MockOption{WithMockClock(peakClock())}, opts...)...)
}

func decode(data [protocol.FrameBytes]byte) int32 {
	return protocol.Decode24(protocol.Join(data))
}

func TestNewMock_Defaults(t *testing.T) {
	m := NewMock(MockConfig{GlitchPeriod: -1})
	cfg := m.Config()

	assert.Equal(t, 80.0, cfg.SampleRate)
	assert.Equal(t, 1.0, cfg.ReferenceUnit)
	assert.Equal(t, 0, cfg.GlitchPeriod)
	assert.Equal(t, 12500*time.Microsecond, m.interval())
}

func TestMock_Read(t *testing.T) {
	m := newTestMock()

	data, err := m.Read(context.Background(), protocol.Gain128.Pulses(), protocol.MSB)
	require.NoError(t, err)
	assert.Equal(t, int32(2000), decode(data))
	assert.Equal(t, 1, m.Samples())
}

func TestMock_GainLatency(t *testing.T) {
	m := newTestMock()
	ctx := context.Background()

	tests := []struct {
		pulses int
		want   int32
	}{
		{pulses: protocol.Gain32.Pulses(), want: 2000},
		{pulses: protocol.Gain64.Pulses(), want: 500},
		{pulses: protocol.Gain128.Pulses(), want: 1000},
		{pulses: protocol.Gain128.Pulses(), want: 2000},
	}

	for i, tt := range tests {
		data, err := m.Read(ctx, tt.pulses, protocol.MSB)
		require.NoError(t, err)
		assert.Equal(t, tt.want, decode(data), "read %d", i)
	}
}

func TestMock_BitOrder(t *testing.T) {
	ctx := context.Background()

	msb, err := newTestMock().Read(ctx, 1, protocol.MSB)
	require.NoError(t, err)
	lsb, err := newTestMock().Read(ctx, 1, protocol.LSB)
	require.NoError(t, err)

	for i := range msb {
		assert.Equal(t, bits.Reverse8(msb[i]), lsb[i])
	}
}

func TestMock_Saturates(t *testing.T) {
	m := NewMock(MockConfig{
		SampleRate:    10000,
		Amplitude:     1,
		ReferenceUnit: 1e6,
		Seed:          1,
	}, WithMockClock(peakClock()))

	data, err := m.Read(context.Background(), 1, protocol.MSB)
	require.NoError(t, err)
	assert.Equal(t, int32(protocol.MaxValue), decode(data))
}

func TestMock_Glitches(t *testing.T) {
	m := NewMock(MockConfig{
		SampleRate:    1e6,
		Amplitude:     1000,
		ReferenceUnit: 1,
		GlitchPeriod:  1,
		Seed:          7,
	}, WithMockClock(peakClock()))

	for range 20 {
		data, err := m.Read(context.Background(), 1, protocol.MSB)
		require.NoError(t, err)
		assert.Contains(t, []int32{0, 40000, 70000, 150000, 280000, 580000}, decode(data))
	}
}

func TestMock_ReadTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewMock(MockConfig{SampleRate: 1}, WithMockClock(func() time.Time { return now }))

	_, err := m.Read(context.Background(), 1, protocol.MSB)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Read(ctx, 1, protocol.MSB)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMock_PowerUpResetsGain(t *testing.T) {
	m := newTestMock()
	ctx := context.Background()

	_, err := m.Read(ctx, protocol.Gain32.Pulses(), protocol.MSB)
	require.NoError(t, err)
	require.NoError(t, m.PowerDown(ctx))
	require.NoError(t, m.PowerUp(ctx))

	data, err := m.Read(ctx, 1, protocol.MSB)
	require.NoError(t, err)
	assert.Equal(t, int32(2000), decode(data))
}

func TestMock_Driver(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, newTestMock(), WithGain(64))
	require.NoError(t, err)

	v, err := d.ReadRaw(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1000), v)

	offset, err := d.TareB(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 500.0, offset)
	assert.Equal(t, 64, d.Gain())

	require.NoError(t, d.SetReferenceUnit(100))
	w, err := d.Weight(ctx, 3)
	require.NoError(t, err)
	assert.InDelta(t, 10, w, 1e-9)

	// The mock resets itself instead of power cycling.
	require.NoError(t, d.Reset(ctx))
	require.NoError(t, d.Close())
}
