package protocol

import (
	"fmt"
	"strings"
)

// Order is the assembly order of bytes within a sample or bits within a byte.
type Order int

const (
	MSB Order = iota
	LSB
)

// ParseOrder accepts "MSB" or "LSB" in any case.
func ParseOrder(s string) (Order, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MSB":
		return MSB, nil
	case "LSB":
		return LSB, nil
	default:
		return MSB, fmt.Errorf("%w: %q", ErrInvalidOrder, s)
	}
}

func (o Order) String() string {
	switch o {
	case MSB:
		return "MSB"
	case LSB:
		return "LSB"
	default:
		return "(invalid order)"
	}
}

// Valid reports whether o is MSB or LSB.
func (o Order) Valid() bool {
	return o == MSB || o == LSB
}

// Arrange puts bytes read in acquisition order into big-endian order for
// Join. LSB byte order reverses them.
func Arrange(data [FrameBytes]byte, order Order) [FrameBytes]byte {
	if order == LSB {
		return [FrameBytes]byte{data[2], data[1], data[0]}
	}
	return data
}
