package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/itohio/growbox/pkg/api"
	"github.com/itohio/growbox/pkg/board"
	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/metrics"
	"github.com/itohio/growbox/pkg/schedule"
	"github.com/itohio/growbox/pkg/sensor"
	"github.com/itohio/growbox/pkg/telemetry"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use simulated board instead of serial port")
		httpFlag   = flag.String("http", "", "HTTP listen address override (e.g., :8080)")
		portsFlag  = flag.Bool("ports", false, "List serial ports and exit")
	)
	flag.Parse()

	if *portsFlag {
		ports, err := board.Ports()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *httpFlag != "" {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Listen = *httpFlag
	}

	log, accessLog, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configFlag, *mockFlag, accessLog, log); err != nil {
		log.Error("growbox stopped", "err", err)
		os.Exit(1)
	}
}

func newDevice(cfg *config.Config, mock bool, log *slog.Logger) board.Device {
	if mock {
		return board.NewMock(cfg.Mock, cfg.Calibration, log)
	}
	return board.New(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.StaleAfter, log)
}

func run(ctx context.Context, cfg *config.Config, path string, mock bool, accessLog io.Writer, log *slog.Logger) error {
	if err := cfg.Control.Validate(); err != nil {
		log.Warn("control configuration has problems", "err", err)
	}

	store := config.NewStore(cfg, path, log.With("component", "config"))

	device := newDevice(cfg, mock, log.With("component", "board"))
	if err := device.Connect(); err != nil {
		return err
	}
	defer device.Close()

	acq, err := sensor.NewAcquirer(device, cfg.Filter, cfg.Calibration, log.With("component", "sensor"))
	if err != nil {
		return err
	}

	hub := sensor.NewHub()
	history := sensor.NewHistory(cfg.Schedule.HistorySize)
	ctrl := control.New(cfg.Control, cfg.Schedule, log.With("component", "control"))
	loop := schedule.NewLoop(cfg.Schedule, acq, ctrl, device, store, hub, log.With("component", "loop"))

	m := metrics.New()
	loop.OnCycle(m.Observe)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return loop.Run(ctx) })
	g.Go(func() error {
		history.Run(ctx, hub, cfg.Schedule.HistoryInterval)
		return nil
	})

	if cfg.MQTT.Enabled {
		pub := telemetry.NewPublisher(cfg.MQTT, store, hub, loop.Outputs, log.With("component", "mqtt"))
		g.Go(func() error { return pub.Run(ctx) })
	}

	if cfg.HTTP.Enabled {
		srv := api.New(api.Deps{
			Store:   store,
			Hub:     hub,
			History: history,
			Outputs: loop.Outputs,
			Metrics: m,
		}, log.With("component", "http"))
		g.Go(func() error { return srv.Run(ctx, cfg.HTTP.Listen, accessLog) })
	}

	log.Info("growbox running", "mock", mock, "plant", cfg.Plant.Name)
	return g.Wait()
}
