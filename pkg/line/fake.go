package line

import (
	"sync"
	"time"

	"github.com/itohio/gohx711/pkg/protocol"
)

// PowerDownHold is how long PD_SCK has to stay high before the chip powers down.
const PowerDownHold = 60 * time.Microsecond

// Source produces the conversion result for the gain/channel latched by the
// chip at the start of that conversion.
type Source func(g protocol.Gain) int32

// Constant always converts to v.
func Constant(v int32) Source {
	return func(protocol.Gain) int32 { return v }
}

// Sequence converts to values in order, starting over once exhausted.
func Sequence(values ...int32) Source {
	i := 0
	return func(protocol.Gain) int32 {
		if len(values) == 0 {
			return 0
		}
		v := values[i%len(values)]
		i++
		return v
	}
}

// ByGain converts to a fixed value per gain, 0 for gains not listed.
func ByGain(values map[protocol.Gain]int32) Source {
	return func(g protocol.Gain) int32 { return values[g] }
}

// Conversion records one frame clocked out of a Fake.
type Conversion struct {
	Gain   protocol.Gain // Gain latched for this conversion
	Value  int32         // Saturated value shifted out
	Pulses int           // Extra pulses that followed the data bits
}

// Fake is an HX711 at the line level. It shifts scripted conversions out
// MSB first on rising clock edges, latches the gain for the next conversion
// from the number of pulses past the 24th, and powers down when the clock is
// held high longer than PowerDownHold. Hold time only advances through Sleep,
// so tests pass Fake.Sleep to whatever issues the power-down delay.
//
// A conversion frame ends when DOUT is read twice without a clock pulse in
// between, which is what a readiness poll after the last gain pulse does.
type Fake struct {
	mu sync.Mutex

	source  Source
	latched protocol.Gain

	clock          bool
	held           time.Duration
	position       int
	readSincePulse bool
	loaded         bool
	frame          uint32
	value          int32

	busy     int
	busyLeft int
	stuck    bool

	pulses      int
	glitches    int
	powerDowns  int
	conversions []Conversion
}

var _ protocol.Line = (*Fake)(nil)

// NewFake creates a powered up chip latched to gain 128.
func NewFake(source Source) *Fake {
	if source == nil {
		source = Constant(0)
	}
	return &Fake{
		source:  source,
		latched: protocol.Gain128,
	}
}

// SetBusy makes every conversion report busy for n polls before it is ready.
func (f *Fake) SetBusy(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = n
	f.busyLeft = n
}

// SetStuck keeps DOUT high forever, as a disconnected chip would.
func (f *Fake) SetStuck(stuck bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stuck = stuck
}

// SetSource replaces the conversion source for subsequent conversions.
func (f *Fake) SetSource(source Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = source
}

// SetClock drives PD_SCK.
func (f *Fake) SetClock(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case high && f.clock:
		f.glitches++
	case high:
		f.rising()
	case f.clock:
		f.falling()
	}
	f.clock = high
	return nil
}

func (f *Fake) rising() {
	f.pulses++
	f.held = 0
	f.position++
	f.readSincePulse = false
}

func (f *Fake) falling() {
	if f.held <= PowerDownHold {
		return
	}
	// The pulse that held the clock up belongs to the power down, not the frame.
	if f.loaded && f.position > protocol.DataBits+1 {
		f.record(f.position - protocol.DataBits - 1)
	}
	f.powerDowns++
	f.position = 0
	f.loaded = false
	f.latched = protocol.Gain128
	f.busyLeft = f.busy
}

func (f *Fake) record(extra int) {
	f.conversions = append(f.conversions, Conversion{
		Gain:   f.latched,
		Value:  f.value,
		Pulses: extra,
	})
}

// ReadData samples DOUT.
func (f *Fake) ReadData() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stuck {
		return true, nil
	}

	switch {
	case f.position == 0:
		return f.idle(), nil
	case f.position <= protocol.DataBits:
		if !f.loaded {
			f.frame = protocol.Encode24(int64(f.source(f.latched)))
			f.value = protocol.Decode24(f.frame)
			f.loaded = true
		}
		f.readSincePulse = true
		return f.frame>>(protocol.DataBits-f.position)&1 == 1, nil
	case !f.readSincePulse:
		f.readSincePulse = true
		return true, nil
	}

	// Second read without a pulse: the host is polling for the next conversion.
	extra := f.position - protocol.DataBits
	f.record(extra)
	if g, err := protocol.GainFromPulses(extra); err == nil {
		f.latched = g
	} else {
		f.latched = protocol.Gain128
	}
	f.position = 0
	f.loaded = false
	f.busyLeft = f.busy
	return f.idle(), nil
}

func (f *Fake) idle() bool {
	if f.busyLeft > 0 {
		f.busyLeft--
		return true
	}
	return false
}

// Sleep advances the time PD_SCK has been held in its current state. It
// never blocks.
func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clock {
		f.held += d
	}
}

// Pulses returns the total number of rising clock edges seen.
func (f *Fake) Pulses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulses
}

// Glitches returns how many times the clock was raised while already high.
func (f *Fake) Glitches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.glitches
}

// PowerDowns returns how many power down cycles the chip went through.
func (f *Fake) PowerDowns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.powerDowns
}

// Clock reports the current PD_SCK level.
func (f *Fake) Clock() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

// Latched returns the gain of the conversion in progress. Gain selected by a
// frame's extra pulses is latched once the host polls for the next conversion.
func (f *Fake) Latched() protocol.Gain {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latched
}

// Conversions returns a copy of all completed frames.
func (f *Fake) Conversions() []Conversion {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]Conversion, len(f.conversions))
	copy(result, f.conversions)
	return result
}
