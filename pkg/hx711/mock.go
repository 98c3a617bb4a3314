package hx711

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/itohio/gohx711/pkg/protocol"
)

// glitchValues are injected in place of a real sample now and then, the way
// a loose wire or a noisy supply would spike a load cell reading.
var glitchValues = []float64{0.0, 40.0, 70.0, 150.0, 280.0, 580.0}

// MockConfig configures the simulated HX711.
type MockConfig struct {
	SampleRate    float64 // Conversions per second
	Amplitude     float64 // Peak of the simulated load, in weight units
	Noise         float64 // Uniform noise added to every sample, in weight units
	ReferenceUnit float64 // Scales samples: raw = load * 1000 * ReferenceUnit
	GlitchPeriod  int     // One in GlitchPeriod samples is a glitch, 0 disables
	Seed          uint64  // Noise seed, 0 seeds from the clock
}

// DefaultMockConfig simulates an HX711 running at 80 samples per second.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		SampleRate:    80,
		Amplitude:     72,
		Noise:         1,
		ReferenceUnit: 1,
		GlitchPeriod:  142,
	}
}

// Mock fabricates noisy sinusoidal load readings at a fixed sample rate
// instead of toggling lines. It honours the gain select pulses with the same
// one conversion latency as the chip, scaling each reading by the latched
// gain relative to 128.
type Mock struct {
	cfg MockConfig
	log zerolog.Logger
	now func() time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	lastRead time.Time
	resetAt  time.Time
	latched  protocol.Gain
	count    int
}

// MockOption configures a Mock.
type MockOption func(*Mock)

// WithMockLogger logs injected glitches at debug level.
func WithMockLogger(log zerolog.Logger) MockOption {
	return func(m *Mock) { m.log = log }
}

// WithMockClock replaces time.Now for sample generation.
func WithMockClock(now func() time.Time) MockOption {
	return func(m *Mock) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMock creates a simulated HX711. A zero SampleRate or ReferenceUnit takes
// its default. Amplitude, Noise and GlitchPeriod are used as given, and a zero
// Seed seeds from the clock.
func NewMock(cfg MockConfig, opts ...MockOption) *Mock {
	def := DefaultMockConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.ReferenceUnit == 0 {
		cfg.ReferenceUnit = def.ReferenceUnit
	}
	if cfg.GlitchPeriod < 0 {
		cfg.GlitchPeriod = 0
	}

	m := &Mock{
		cfg:     cfg,
		log:     zerolog.Nop(),
		now:     time.Now,
		latched: protocol.Gain128,
	}
	for _, opt := range opts {
		opt(m)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	m.rng = rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	m.resetAt = m.now()
	return m
}

// Config returns the effective configuration.
func (m *Mock) Config() MockConfig {
	return m.cfg
}

func (m *Mock) interval() time.Duration {
	return time.Duration(float64(time.Second) / m.cfg.SampleRate)
}

// Read waits for the next conversion slot and returns a synthetic sample
// encoded exactly as the chip would shift it out.
func (m *Mock) Read(ctx context.Context, pulses int, order protocol.Order) ([protocol.FrameBytes]byte, error) {
	var data [protocol.FrameBytes]byte

	m.mu.Lock()
	wait := m.lastRead.Add(m.interval()).Sub(m.now())
	m.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return data, fmt.Errorf("%w: %w", protocol.ErrTimeout, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return data, fmt.Errorf("%w: %w", protocol.ErrTimeout, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastRead = m.now()
	value := m.generate()

	// Gain pulses apply to the next conversion.
	if g, err := protocol.GainFromPulses(pulses); err == nil {
		m.latched = g
	} else {
		m.latched = protocol.Gain128
	}

	data = protocol.Split(protocol.Encode24(int64(math.Round(value))))
	if order == protocol.LSB {
		// The chip shifts MSB first; assembling LSB first mirrors every byte.
		for i := range data {
			data[i] = bits.Reverse8(data[i])
		}
	}
	return data, nil
}

// generate returns one raw sample for the latched gain. Caller holds mu.
func (m *Mock) generate() float64 {
	m.count++
	elapsed := m.now().Sub(m.resetAt).Seconds()

	sample := math.Abs(math.Sin(elapsed*20*math.Pi/180)) * m.cfg.Amplitude
	sample += (m.rng.Float64()*2 - 1) * m.cfg.Noise

	if m.cfg.GlitchPeriod > 0 && m.rng.IntN(m.cfg.GlitchPeriod) == 0 {
		sample = glitchValues[m.rng.IntN(len(glitchValues))]
		m.log.Debug().
			Int("sample", m.count).
			Float64("value", sample).
			Msg("injecting bad sample")
	}

	return sample * 1000 * m.cfg.ReferenceUnit * float64(m.latched) / float64(protocol.Gain128)
}

// PowerDown simulates the power down hold.
func (m *Mock) PowerDown(ctx context.Context) error {
	time.Sleep(PowerSettle)
	return nil
}

// PowerUp simulates waking up at channel A, gain 128.
func (m *Mock) PowerUp(ctx context.Context) error {
	time.Sleep(PowerSettle)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latched = protocol.Gain128
	return nil
}

// Reset restarts the simulated load curve without a power cycle.
func (m *Mock) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetAt = m.now()
	return nil
}

// Samples returns how many conversions have been generated.
func (m *Mock) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *Mock) Close() error {
	return nil
}
