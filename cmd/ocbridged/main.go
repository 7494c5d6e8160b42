package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencontrol/ocbridge/internal/bridge"
	"github.com/opencontrol/ocbridge/internal/config"
	"github.com/opencontrol/ocbridge/internal/control"
	"github.com/opencontrol/ocbridge/internal/eventlog"
	"github.com/opencontrol/ocbridge/internal/hostlink"
	"github.com/opencontrol/ocbridge/internal/observability"
	"github.com/opencontrol/ocbridge/internal/seriallink"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to config.toml (defaults apply when omitted)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ocbridged %s\n", version)
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ocbridged: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "ocbridged: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger := observability.InitLogger("ocbridged")
	observability.RegisterMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// The control-plane shutdown command and process signals share one path.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := eventlog.New(cfg.RingCapacity)
	if cfg.FileEnabled {
		fileSink, err := eventlog.NewFileSink(eventlog.FileConfig{
			Path:          cfg.FilePath,
			MaxBytes:      cfg.FileMaxBytes,
			MaxFiles:      cfg.FileMaxFiles,
			FlushInterval: cfg.FileFlushInterval,
			Filter:        cfg.FileCategories,
		})
		if err != nil {
			return err
		}
		defer fileSink.Close()
		events.AddSink(fileSink)
	}
	if cfg.LogBroadcastPort > 0 {
		broadcast, err := eventlog.NewBroadcastSink(cfg.LogBroadcastPort)
		if err != nil {
			return err
		}
		defer broadcast.Close()
		events.AddSink(broadcast)
	}

	host, err := openHostEndpoint(cfg)
	if err != nil {
		return err
	}

	link := seriallink.NewManager(seriallink.Config{
		PortName: cfg.SerialPort,
		BaudRate: cfg.BaudRate,
		Preset:   cfg.Preset,
	}, events)

	b := bridge.New(bridge.Config{}, link, host, events, logger)

	ctrl := control.NewServer(control.ServerConfig{
		Port:      cfg.ControlPort,
		Version:   version,
		Transport: cfg.HostTransport,
		HostPort:  cfg.HostPort,
	}, b, events, logger, cancel)
	if err := ctrl.Listen(); err != nil {
		return err
	}

	logger.Info().
		Str("version", version).
		Str("transport", cfg.HostTransport).
		Int("host_port", cfg.HostPort).
		Int("control_port", cfg.ControlPort).
		Msg("ocbridged starting")

	errCh := make(chan error, 3)
	workers := 2
	go func() { errCh <- b.Run(ctx) }()
	go func() { errCh <- ctrl.Serve(ctx) }()
	if cfg.DebugHTTPAddr != "" {
		workers++
		debug := observability.NewDebugServer("ocbridged", version, func() any { return b.Status() })
		go func() { errCh <- debug.Run(ctx, cfg.DebugHTTPAddr) }()
	}

	var firstErr error
	for i := 0; i < workers; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	logger.Info().Msg("ocbridged stopped")
	return firstErr
}

func openHostEndpoint(cfg config.Config) (hostlink.Endpoint, error) {
	switch cfg.HostTransport {
	case "stream":
		return hostlink.ListenStream(cfg.HostPort)
	default:
		return hostlink.ListenUDP(cfg.HostPort)
	}
}
