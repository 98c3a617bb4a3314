package hx711

import (
	"fmt"
	"math"
)

// Calibration converts offset corrected raw counts into weight for one channel.
type Calibration struct {
	Offset        float64 // Raw reading at zero load
	ReferenceUnit float64 // Raw counts per weight unit, never 0
}

// NewCalibration returns an identity calibration.
func NewCalibration() Calibration {
	return Calibration{ReferenceUnit: 1}
}

// ValidateReferenceUnit rejects reference units that cannot be divided by.
func ValidateReferenceUnit(v float64) error {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: reference unit %v", ErrInvalidConfiguration, v)
	}
	return nil
}

// Validate checks the reference unit.
func (c Calibration) Validate() error {
	return ValidateReferenceUnit(c.ReferenceUnit)
}

// SetReferenceUnit stores v unless it is invalid.
func (c *Calibration) SetReferenceUnit(v float64) error {
	if err := ValidateReferenceUnit(v); err != nil {
		return err
	}
	c.ReferenceUnit = v
	return nil
}

// Value removes the offset from an aggregated raw reading.
func (c Calibration) Value(raw float64) float64 {
	return raw - c.Offset
}

// Weight converts an aggregated raw reading to weight units.
func (c Calibration) Weight(raw float64) float64 {
	return c.Value(raw) / c.ReferenceUnit
}
