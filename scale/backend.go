package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/itohio/gohx711/pkg/config"
	"github.com/itohio/gohx711/pkg/hx711"
	"github.com/itohio/gohx711/pkg/line"
	"github.com/itohio/gohx711/pkg/protocol"
	"github.com/itohio/gohx711/pkg/sample"
)

// openDecoder opens the backend selected in the device section.
func openDecoder(cfg *config.Config, log zerolog.Logger) (hx711.Decoder, error) {
	d := cfg.Device

	switch d.Backend {
	case config.BackendGPIO:
		l, err := line.OpenPeriph(d.DataPin, d.ClockPin)
		if err != nil {
			return nil, err
		}
		return newLineDecoder(l, d)

	case config.BackendRPIO:
		data, err := strconv.Atoi(d.DataPin)
		if err != nil {
			return nil, fmt.Errorf("invalid data pin %q: %w", d.DataPin, err)
		}
		clock, err := strconv.Atoi(d.ClockPin)
		if err != nil {
			return nil, fmt.Errorf("invalid clock pin %q: %w", d.ClockPin, err)
		}
		l, err := line.OpenRPIO(data, clock)
		if err != nil {
			return nil, err
		}
		return newLineDecoder(l, d)

	case config.BackendBridge:
		return hx711.OpenBridge(d.SerialPort, d.BaudRate)

	case config.BackendMock:
		return hx711.NewMock(cfg.Mock.Config(), hx711.WithMockLogger(log)), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", d.Backend)
	}
}

type closingLine interface {
	protocol.Line
	Close() error
}

func newLineDecoder(l closingLine, d config.DeviceConfig) (hx711.Decoder, error) {
	dec, err := hx711.NewLineDecoder(l, hx711.WithPoll(d.PollInterval))
	if err != nil {
		l.Close()
		return nil, err
	}
	return dec, nil
}

// driverOptions maps the configuration onto driver options.
func driverOptions(cfg *config.Config, log zerolog.Logger) ([]hx711.Option, error) {
	strategy, err := sample.ParseStrategy(cfg.Measurement.Strategy)
	if err != nil {
		return nil, err
	}

	return []hx711.Option{
		hx711.WithGain(cfg.Device.Gain),
		hx711.WithReadingFormat(cfg.Device.ByteFormat, cfg.Device.BitFormat),
		hx711.WithReadyTimeout(cfg.Device.ReadyTimeout),
		hx711.WithStrategy(strategy),
		hx711.WithCalibration(protocol.ChannelA, cfg.Calibration.Channel(protocol.ChannelA)),
		hx711.WithCalibration(protocol.ChannelB, cfg.Calibration.Channel(protocol.ChannelB)),
		hx711.WithLogger(log),
	}, nil
}
