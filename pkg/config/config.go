package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/gohx711/pkg/hx711"
	"github.com/itohio/gohx711/pkg/protocol"
	"github.com/itohio/gohx711/pkg/sample"
)

// Backends that can drive the chip.
const (
	BackendGPIO   = "gpio"   // periph.io GPIO by pin name
	BackendRPIO   = "rpio"   // go-rpio /dev/gpiomem by BCM number
	BackendBridge = "bridge" // Microcontroller bridge over a serial port
	BackendMock   = "mock"   // Simulated chip
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config represents the application configuration.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Mock        MockConfig        `yaml:"mock"`
}

// DeviceConfig selects the backend and how the chip is read.
type DeviceConfig struct {
	Backend      string        `yaml:"backend"`
	DataPin      string        `yaml:"data_pin"`  // DOUT, a pin name for gpio or a BCM number for rpio
	ClockPin     string        `yaml:"clock_pin"` // PD_SCK
	SerialPort   string        `yaml:"serial_port"`
	BaudRate     int           `yaml:"baud_rate"`
	Gain         int           `yaml:"gain"`
	ByteFormat   string        `yaml:"byte_format"`
	BitFormat    string        `yaml:"bit_format"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // 0 waits forever
	PollInterval time.Duration `yaml:"poll_interval"` // 0 spins
}

// MeasurementConfig contains measurement parameters.
type MeasurementConfig struct {
	Times     int           `yaml:"times"`      // Conversions per reading
	TareTimes int           `yaml:"tare_times"` // Conversions per tare
	Strategy  string        `yaml:"strategy"`   // auto, median, mean or trimmed
	Interval  time.Duration `yaml:"interval"`   // Period between readings in watch mode
	Smoothing int           `yaml:"smoothing"`  // Rolling median over this many watch readings, 0 disables
}

// CalibrationConfig holds the per channel calibration the driver starts with.
type CalibrationConfig struct {
	A ChannelCalibration `yaml:"a"`
	B ChannelCalibration `yaml:"b"`
}

// ChannelCalibration is the calibration of one channel.
type ChannelCalibration struct {
	Offset        float64 `yaml:"offset"`
	ReferenceUnit float64 `yaml:"reference_unit"`
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	SampleRate    float64 `yaml:"sample_rate"`    // Conversions per second
	Amplitude     float64 `yaml:"amplitude"`      // Peak simulated load
	Noise         float64 `yaml:"noise"`          // Uniform noise amplitude
	ReferenceUnit float64 `yaml:"reference_unit"` // Raw counts per 1/1000 load unit
	GlitchPeriod  int     `yaml:"glitch_period"`  // One glitch every N samples on average, 0 disables
	Seed          uint64  `yaml:"seed"`           // 0 seeds from the clock
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	mock := hx711.DefaultMockConfig()
	return &Config{
		Device: DeviceConfig{
			Backend:      BackendGPIO,
			DataPin:      "GPIO5",
			ClockPin:     "GPIO6",
			SerialPort:   "/dev/ttyACM0",
			BaudRate:     hx711.DefaultBaudRate,
			Gain:         int(protocol.Gain128),
			ByteFormat:   protocol.MSB.String(),
			BitFormat:    protocol.MSB.String(),
			ReadyTimeout: hx711.DefaultReadyTimeout,
		},
		Measurement: MeasurementConfig{
			Times:     hx711.DefaultTimes,
			TareTimes: hx711.DefaultTareTimes,
			Strategy:  sample.Median.String(),
			Interval:  500 * time.Millisecond,
		},
		Calibration: CalibrationConfig{
			A: ChannelCalibration{ReferenceUnit: 1},
			B: ChannelCalibration{ReferenceUnit: 1},
		},
		Mock: MockConfig{
			SampleRate:    mock.SampleRate,
			Amplitude:     mock.Amplitude,
			Noise:         mock.Noise,
			ReferenceUnit: mock.ReferenceUnit,
			GlitchPeriod:  mock.GlitchPeriod,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Device.Backend == "" {
		c.Device.Backend = def.Device.Backend
	}
	c.Device.Backend = strings.ToLower(c.Device.Backend)
	if c.Device.BaudRate == 0 {
		c.Device.BaudRate = def.Device.BaudRate
	}
	if c.Device.Gain == 0 {
		c.Device.Gain = def.Device.Gain
	}
	if c.Device.ByteFormat == "" {
		c.Device.ByteFormat = def.Device.ByteFormat
	}
	if c.Device.BitFormat == "" {
		c.Device.BitFormat = def.Device.BitFormat
	}

	if c.Measurement.Times == 0 {
		c.Measurement.Times = def.Measurement.Times
	}
	if c.Measurement.TareTimes == 0 {
		c.Measurement.TareTimes = def.Measurement.TareTimes
	}
	if c.Measurement.Strategy == "" {
		c.Measurement.Strategy = def.Measurement.Strategy
	}
	if c.Measurement.Interval == 0 {
		c.Measurement.Interval = def.Measurement.Interval
	}

	if c.Calibration.A.ReferenceUnit == 0 {
		c.Calibration.A.ReferenceUnit = def.Calibration.A.ReferenceUnit
	}
	if c.Calibration.B.ReferenceUnit == 0 {
		c.Calibration.B.ReferenceUnit = def.Calibration.B.ReferenceUnit
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.ReferenceUnit == 0 {
		c.Mock.ReferenceUnit = def.Mock.ReferenceUnit
	}
}

// Validate checks every value the driver would reject.
func (c *Config) Validate() error {
	d := c.Device
	switch d.Backend {
	case BackendGPIO, BackendRPIO:
		if d.DataPin == "" || d.ClockPin == "" {
			return fmt.Errorf("%w: %s backend needs data_pin and clock_pin", ErrInvalid, d.Backend)
		}
	case BackendBridge:
		if d.SerialPort == "" {
			return fmt.Errorf("%w: bridge backend needs serial_port", ErrInvalid)
		}
	case BackendMock:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, d.Backend)
	}

	if _, err := protocol.ParseGain(d.Gain); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := protocol.ParseOrder(d.ByteFormat); err != nil {
		return fmt.Errorf("%w: byte_format: %w", ErrInvalid, err)
	}
	if _, err := protocol.ParseOrder(d.BitFormat); err != nil {
		return fmt.Errorf("%w: bit_format: %w", ErrInvalid, err)
	}
	if d.ReadyTimeout < 0 || d.PollInterval < 0 {
		return fmt.Errorf("%w: negative ready_timeout or poll_interval", ErrInvalid)
	}

	m := c.Measurement
	if m.Times <= 0 || m.TareTimes <= 0 {
		return fmt.Errorf("%w: times and tare_times must be at least 1", ErrInvalid)
	}
	if m.Smoothing < 0 {
		return fmt.Errorf("%w: negative smoothing", ErrInvalid)
	}
	if _, err := sample.ParseStrategy(m.Strategy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := hx711.ValidateReferenceUnit(c.Calibration.A.ReferenceUnit); err != nil {
		return fmt.Errorf("%w: calibration a: %w", ErrInvalid, err)
	}
	if err := hx711.ValidateReferenceUnit(c.Calibration.B.ReferenceUnit); err != nil {
		return fmt.Errorf("%w: calibration b: %w", ErrInvalid, err)
	}
	return nil
}

// Channel returns the configured calibration of a channel.
func (c CalibrationConfig) Channel(ch protocol.Channel) hx711.Calibration {
	cc := c.A
	if ch == protocol.ChannelB {
		cc = c.B
	}
	return hx711.Calibration{Offset: cc.Offset, ReferenceUnit: cc.ReferenceUnit}
}

// Config converts the mock section for hx711.NewMock.
func (m MockConfig) Config() hx711.MockConfig {
	return hx711.MockConfig{
		SampleRate:    m.SampleRate,
		Amplitude:     m.Amplitude,
		Noise:         m.Noise,
		ReferenceUnit: m.ReferenceUnit,
		GlitchPeriod:  m.GlitchPeriod,
		Seed:          m.Seed,
	}
}
