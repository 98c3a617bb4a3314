package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGain(t *testing.T) {
	tests := []struct {
		gain    int
		pulses  int
		channel Channel
	}{
		{128, 1, ChannelA},
		{64, 3, ChannelA},
		{32, 2, ChannelB},
	}

	for _, tt := range tests {
		t.Run(Gain(tt.gain).String(), func(t *testing.T) {
			g, err := ParseGain(tt.gain)
			require.NoError(t, err)
			assert.Equal(t, tt.pulses, g.Pulses())
			assert.Equal(t, tt.channel, g.Channel())

			back, err := GainFromPulses(tt.pulses)
			require.NoError(t, err)
			assert.Equal(t, g, back)
		})
	}
}

func TestParseGain_Invalid(t *testing.T) {
	for _, v := range []int{0, 1, 16, 127, 256} {
		_, err := ParseGain(v)
		assert.ErrorIs(t, err, ErrInvalidGain, "gain %d", v)
	}
	_, err := GainFromPulses(4)
	assert.ErrorIs(t, err, ErrInvalidGain)
}
