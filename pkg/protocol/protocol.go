// Package protocol implements the HX711 two-wire serial protocol: clocking
// 24 data bits out of the chip, the gain select pulses that follow them, and
// the 24-bit two's complement encoding of a conversion.
//
// Nothing in this package locks. A single frame must never interleave with
// another on the same line; callers serialize access.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
)

const (
	// DataBits is the number of data bits in one conversion.
	DataBits = 24
	// FrameBytes is the number of bytes a conversion is assembled into.
	FrameBytes = DataBits / 8
)

var (
	// ErrTimeout is returned when the chip does not signal data ready in time.
	ErrTimeout = errors.New("hx711 not ready")
	// ErrInvalidOrder is returned for byte/bit orders other than MSB and LSB.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInvalidGain is returned for gains other than 128, 64 and 32.
	ErrInvalidGain = errors.New("invalid gain")
)

// Line is the pair of digital lines the HX711 is wired to: PD_SCK driven by
// us, DOUT sampled by us.
type Line interface {
	SetClock(high bool) error
	ReadData() (bool, error)
}

// Frame describes how a single conversion is read.
type Frame struct {
	Pulses   int           // Extra clock pulses after the data bits (gain select)
	BitOrder Order         // Bit assembly order within each byte
	Poll     time.Duration // Delay between readiness polls, 0 spins
}

// WaitReady polls DOUT until the chip pulls it low. It gives up only when ctx
// ends.
func WaitReady(ctx context.Context, l Line, poll time.Duration) error {
	for {
		busy, err := l.ReadData()
		if err != nil {
			return fmt.Errorf("failed to read data line: %w", err)
		}
		if !busy {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		default:
		}

		if poll > 0 {
			time.Sleep(poll)
		} else {
			runtime.Gosched()
		}
	}
}

// ReadBit clocks one bit out of the chip. DOUT changes after the rising edge
// of PD_SCK and is only guaranteed stable once the clock is low again, so it
// is sampled after the falling edge.
func ReadBit(l Line) (bool, error) {
	if err := l.SetClock(true); err != nil {
		return false, fmt.Errorf("failed to raise clock: %w", err)
	}
	if err := l.SetClock(false); err != nil {
		return false, fmt.Errorf("failed to lower clock: %w", err)
	}
	bit, err := l.ReadData()
	if err != nil {
		return false, fmt.Errorf("failed to read data line: %w", err)
	}
	return bit, nil
}

// ReadByte clocks eight bits out of the chip and packs them in the given order.
func ReadByte(l Line, order Order) (byte, error) {
	var value byte
	for range 8 {
		bit, err := ReadBit(l)
		if err != nil {
			return 0, err
		}
		if order == LSB {
			value >>= 1
			if bit {
				value |= 0x80
			}
		} else {
			value <<= 1
			if bit {
				value |= 0x01
			}
		}
	}
	return value, nil
}

// ReadFrame waits for a conversion, reads its three bytes in acquisition
// order and then sends f.Pulses extra clock pulses. The extra pulses select
// the gain and channel of the next conversion, not this one.
func ReadFrame(ctx context.Context, l Line, f Frame) ([FrameBytes]byte, error) {
	var data [FrameBytes]byte

	if err := WaitReady(ctx, l, f.Poll); err != nil {
		return data, err
	}

	for i := range data {
		b, err := ReadByte(l, f.BitOrder)
		if err != nil {
			return data, err
		}
		data[i] = b
	}

	for range f.Pulses {
		if _, err := ReadBit(l); err != nil {
			return data, err
		}
	}

	return data, nil
}
