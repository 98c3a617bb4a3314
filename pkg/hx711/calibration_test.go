package hx711

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibration_SetReferenceUnit(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{name: "positive", value: 21.5},
		{name: "negative", value: -3},
		{name: "zero", value: 0, wantErr: true},
		{name: "nan", value: math.NaN(), wantErr: true},
		{name: "inf", value: math.Inf(1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCalibration()
			err := c.SetReferenceUnit(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
				assert.Equal(t, 1.0, c.ReferenceUnit)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, c.ReferenceUnit)
		})
	}
}

func TestCalibration_Weight(t *testing.T) {
	c := Calibration{Offset: 8000, ReferenceUnit: -20}

	assert.Equal(t, 2000.0, c.Value(10000))
	assert.Equal(t, -100.0, c.Weight(10000))
	assert.Equal(t, 0.0, c.Weight(8000))
	require.NoError(t, c.Validate())
	assert.Error(t, Calibration{}.Validate())
}
