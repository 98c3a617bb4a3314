package hx711

import (
	"errors"

	"github.com/itohio/gohx711/pkg/protocol"
)

var (
	// ErrInvalidConfiguration is returned by mutators given a value they
	// cannot store: a zero reference unit, an unknown byte/bit format or gain.
	// State is left unchanged.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidArgument is returned for non-positive sample counts and
	// unusable calibration loads.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrClosed is returned by reads on a closed driver.
	ErrClosed = errors.New("driver closed")
	// ErrTimeout is returned when the chip does not become ready in time.
	ErrTimeout = protocol.ErrTimeout
)
