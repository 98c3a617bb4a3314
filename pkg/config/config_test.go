package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gohx711/pkg/hx711"
	"github.com/itohio/gohx711/pkg/protocol"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	_, err = tmpfile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, BackendGPIO, cfg.Device.Backend)
	assert.Equal(t, "GPIO5", cfg.Device.DataPin)
	assert.Equal(t, "GPIO6", cfg.Device.ClockPin)
	assert.Equal(t, 115200, cfg.Device.BaudRate)
	assert.Equal(t, 128, cfg.Device.Gain)
	assert.Equal(t, "MSB", cfg.Device.ByteFormat)
	assert.Equal(t, "MSB", cfg.Device.BitFormat)
	assert.Equal(t, time.Second, cfg.Device.ReadyTimeout)
	assert.Equal(t, 3, cfg.Measurement.Times)
	assert.Equal(t, 15, cfg.Measurement.TareTimes)
	assert.Equal(t, "median", cfg.Measurement.Strategy)
	assert.Equal(t, float64(1), cfg.Calibration.A.ReferenceUnit)
	assert.Equal(t, float64(1), cfg.Calibration.B.ReferenceUnit)
	assert.Equal(t, float64(80), cfg.Mock.SampleRate)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, BackendGPIO, cfg.Device.Backend)
}

func TestLoad_ValidYAML(t *testing.T) {
	yamlContent := `
device:
  backend: RPIO
  data_pin: "5"
  clock_pin: "6"
  gain: 32
  byte_format: lsb
  bit_format: MSB
  ready_timeout: 250ms
  poll_interval: 1ms

measurement:
  times: 5
  tare_times: 20
  strategy: trimmed
  interval: 2s
  smoothing: 9

calibration:
  a:
    offset: -8123.5
    reference_unit: 92.1
  b:
    offset: 40
    reference_unit: -11

mock:
  sample_rate: 10
  noise: 0
  glitch_period: 0
  seed: 42
`

	cfg, err := Load(writeTemp(t, yamlContent))
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, BackendRPIO, cfg.Device.Backend)
	assert.Equal(t, "5", cfg.Device.DataPin)
	assert.Equal(t, 32, cfg.Device.Gain)
	assert.Equal(t, "lsb", cfg.Device.ByteFormat)
	assert.Equal(t, 250*time.Millisecond, cfg.Device.ReadyTimeout)
	assert.Equal(t, time.Millisecond, cfg.Device.PollInterval)
	assert.Equal(t, 5, cfg.Measurement.Times)
	assert.Equal(t, 20, cfg.Measurement.TareTimes)
	assert.Equal(t, "trimmed", cfg.Measurement.Strategy)
	assert.Equal(t, 2*time.Second, cfg.Measurement.Interval)
	assert.Equal(t, 9, cfg.Measurement.Smoothing)
	assert.Equal(t, hx711.Calibration{Offset: -8123.5, ReferenceUnit: 92.1}, cfg.Calibration.Channel(protocol.ChannelA))
	assert.Equal(t, hx711.Calibration{Offset: 40, ReferenceUnit: -11}, cfg.Calibration.Channel(protocol.ChannelB))

	mock := cfg.Mock.Config()
	assert.Equal(t, float64(10), mock.SampleRate)
	assert.Equal(t, float64(0), mock.Noise)
	assert.Equal(t, 0, mock.GlitchPeriod)
	assert.Equal(t, uint64(42), mock.Seed)
	assert.Equal(t, float64(72), mock.Amplitude, "default kept")

	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfg, err := Load(writeTemp(t, "invalid: yaml: content: ["))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	yamlContent := `
device:
  backend: bridge
  serial_port: "/dev/ttyUSB1"
`

	cfg, err := Load(writeTemp(t, yamlContent))
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing fields
	assert.Equal(t, BackendBridge, cfg.Device.Backend)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Device.SerialPort)
	assert.Equal(t, 115200, cfg.Device.BaudRate)                 // default
	assert.Equal(t, 128, cfg.Device.Gain)                        // default
	assert.Equal(t, 15, cfg.Measurement.TareTimes)               // default
	assert.Equal(t, float64(1), cfg.Calibration.A.ReferenceUnit) // default
	require.NoError(t, cfg.Validate())
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Device.Backend = BackendMock
	cfg.Calibration.A.Offset = 1234.5
	cfg.Measurement.Times = 7

	filename := writeTemp(t, "")
	require.NoError(t, cfg.Save(filename))

	// Load it back and verify
	loaded, err := Load(filename)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "backend", modify: func(c *Config) { c.Device.Backend = "i2c" }},
		{name: "pins", modify: func(c *Config) { c.Device.ClockPin = "" }},
		{name: "serial port", modify: func(c *Config) { c.Device.Backend = BackendBridge; c.Device.SerialPort = "" }},
		{name: "gain", modify: func(c *Config) { c.Device.Gain = 100 }},
		{name: "byte format", modify: func(c *Config) { c.Device.ByteFormat = "big" }},
		{name: "bit format", modify: func(c *Config) { c.Device.BitFormat = "little" }},
		{name: "timeout", modify: func(c *Config) { c.Device.ReadyTimeout = -time.Second }},
		{name: "times", modify: func(c *Config) { c.Measurement.Times = -1 }},
		{name: "tare times", modify: func(c *Config) { c.Measurement.TareTimes = -3 }},
		{name: "smoothing", modify: func(c *Config) { c.Measurement.Smoothing = -1 }},
		{name: "strategy", modify: func(c *Config) { c.Measurement.Strategy = "mode" }},
		{name: "reference unit a", modify: func(c *Config) { c.Calibration.A.ReferenceUnit = 0 }},
		{name: "reference unit b", modify: func(c *Config) { c.Calibration.B.ReferenceUnit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
