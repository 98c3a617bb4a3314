// Command scale reads an HX711 load cell amplifier: it tares, calibrates
// against a known weight, takes single readings or streams them.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/itohio/gohx711/pkg/config"
	"github.com/itohio/gohx711/pkg/hx711"
	"github.com/itohio/gohx711/pkg/protocol"
	"github.com/itohio/gohx711/pkg/sample"
)

var log zerolog.Logger

func init() {
	cw := zerolog.ConsoleWriter{Out: os.Stderr}
	log = zerolog.New(cw).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

func main() {
	var (
		configFlag    = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag      = flag.Bool("mock", false, "Use the simulated HX711 instead of the configured backend")
		timesFlag     = flag.Int("times", 0, "Conversions per reading (overrides config)")
		tareFlag      = flag.Bool("tare", false, "Tare before measuring")
		calibrateFlag = flag.Float64("calibrate", 0, "Calibrate against this known weight: tare, wait for the load, compute the reference unit")
		watchFlag     = flag.Bool("watch", false, "Stream readings until interrupted")
		channelBFlag  = flag.Bool("b", false, "Measure channel B instead of A")
		verboseFlag   = flag.Bool("v", false, "Debug logging")
		listFlag      = flag.Bool("list", false, "List serial ports for the bridge backend and exit")
		initFlag      = flag.Bool("init", false, "Write the default configuration to -config and exit")
	)
	flag.Parse()

	if *verboseFlag {
		log = log.Level(zerolog.DebugLevel)
	}

	if *listFlag {
		ports, err := hx711.Ports()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to list ports")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	if *initFlag {
		if err := config.Default().Save(*configFlag); err != nil {
			log.Fatal().Err(err).Msg("failed to write configuration")
		}
		log.Info().Str("file", *configFlag).Msg("default configuration written")
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *mockFlag {
		cfg.Device.Backend = config.BackendMock
	}
	if *timesFlag > 0 {
		cfg.Measurement.Times = *timesFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ch := protocol.ChannelA
	if *channelBFlag {
		ch = protocol.ChannelB
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, runFlags{
		channel:   ch,
		tare:      *tareFlag,
		calibrate: *calibrateFlag,
		watch:     *watchFlag,
	})
	if err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("scale failed")
	}
}

type runFlags struct {
	channel   protocol.Channel
	tare      bool
	calibrate float64
	watch     bool
}

func run(ctx context.Context, cfg *config.Config, f runFlags) error {
	dec, err := openDecoder(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", cfg.Device.Backend, err)
	}
	opts, err := driverOptions(cfg, log)
	if err != nil {
		dec.Close()
		return err
	}

	d, err := hx711.New(ctx, dec, opts...)
	if err != nil {
		dec.Close()
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close driver")
		}
	}()

	log.Info().
		Str("backend", cfg.Device.Backend).
		Stringer("gain", d.Snapshot().Gain).
		Stringer("channel", f.channel).
		Msg("hx711 connected")

	if f.tare || f.calibrate != 0 {
		if _, err := tare(ctx, d, f.channel, cfg.Measurement.TareTimes); err != nil {
			return err
		}
	}

	if f.calibrate != 0 {
		if err := calibrate(ctx, d, f.channel, f.calibrate, cfg.Measurement.TareTimes); err != nil {
			return err
		}
	}

	if f.watch {
		return watch(ctx, d, cfg, f.channel)
	}

	w, err := weight(ctx, d, f.channel, cfg.Measurement.Times)
	if err != nil {
		return err
	}
	fmt.Printf("%.3f\n", w)
	return nil
}

func tare(ctx context.Context, d *hx711.Driver, ch protocol.Channel, times int) (float64, error) {
	log.Info().Msg("taring, keep the scale empty")
	if ch == protocol.ChannelB {
		return d.TareB(ctx, times)
	}
	return d.TareA(ctx, times)
}

func weight(ctx context.Context, d *hx711.Driver, ch protocol.Channel, times int) (float64, error) {
	if ch == protocol.ChannelB {
		return d.WeightB(ctx, times)
	}
	return d.WeightA(ctx, times)
}

func calibrate(ctx context.Context, d *hx711.Driver, ch protocol.Channel, known float64, times int) error {
	log.Info().Float64("weight", known).Msg("place the known weight on the scale and press enter")
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		return fmt.Errorf("failed to wait for input: %w", err)
	}

	unit, err := d.Calibrate(ctx, ch, known, times)
	if err != nil {
		return err
	}

	state := d.Snapshot()
	cal := state.A
	if ch == protocol.ChannelB {
		cal = state.B
	}
	log.Info().
		Stringer("channel", ch).
		Float64("offset", cal.Offset).
		Float64("reference_unit", unit).
		Msg("calibrated, copy these into the calibration section of the configuration")
	return nil
}

func watch(ctx context.Context, d *hx711.Driver, cfg *config.Config, ch protocol.Channel) error {
	readings, err := d.Stream(ctx, hx711.StreamConfig{
		Channel:  ch,
		Times:    cfg.Measurement.Times,
		Interval: cfg.Measurement.Interval,
	})
	if err != nil {
		return err
	}

	if cfg.Measurement.Smoothing == 0 {
		for r := range readings {
			if r.Err != nil {
				log.Warn().Err(r.Err).Msg("reading failed")
				continue
			}
			log.Info().
				Float64("raw", r.Raw).
				Float64("value", r.Value).
				Float64("weight", r.Weight).
				Msg("reading")
		}
		return nil
	}

	smooth := sample.NewWindowConverter(sample.Median, cfg.Measurement.Smoothing, 0)
	for p := range smooth(weights(readings)) {
		log.Info().Float64("weight", p.Value).Msg("reading")
	}
	return nil
}

// weights forwards the weight of every successful reading.
func weights(readings <-chan hx711.Reading) <-chan sample.Point {
	out := make(chan sample.Point)
	go func() {
		defer close(out)
		for r := range readings {
			if r.Err != nil {
				log.Warn().Err(r.Err).Msg("reading failed")
				continue
			}
			out <- sample.Point{Timestamp: r.Timestamp, Value: r.Weight}
		}
	}()
	return out
}
