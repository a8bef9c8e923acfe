// Command submixtap taps the rendered submix of an audio device and feeds it
// to a reverse-audio processor, with an HTTP control API for recording.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/submixtap/internal/app"
	"github.com/MrWong99/submixtap/internal/config"
	"github.com/MrWong99/submixtap/internal/observe"
	"github.com/MrWong99/submixtap/internal/tap"
	"github.com/MrWong99/submixtap/pkg/audio"
	"github.com/MrWong99/submixtap/pkg/audio/netdevice"
	"github.com/MrWong99/submixtap/pkg/audio/synth"
	"github.com/MrWong99/submixtap/pkg/reverse"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watchInterval := flag.Duration("watch-interval", 5*time.Second, "how often the config file is polled for changes (0 disables)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "submixtap: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "submixtap: %v\n", err)
		}
		return 1
	}
	config.ApplyDefaults(cfg, tap.DefaultSampleRate)

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(&level))

	slog.Info("submixtap starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	// Must run before the first observe.DefaultMetrics call so instruments
	// bind to the Prometheus-backed provider.
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "submixtap",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Component registry ────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltins(reg, metrics)

	comps, err := buildComponents(cfg, reg)
	if err != nil {
		slog.Error("failed to build components", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	opts := []app.Option{
		app.WithMetrics(metrics),
		app.WithMetricsHandler(telemetry.MetricsHandler()),
	}
	if *watchInterval > 0 {
		w, err := config.NewWatcher(*configPath, func(_, _ *config.Config, d config.ConfigDiff) {
			applyConfigChange(&level, d)
		}, config.WithInterval(*watchInterval), config.WithPlatformRate(tap.DefaultSampleRate))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			opts = append(opts, app.WithBackground(w.Run))
		}
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, comps, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Component wiring ──────────────────────────────────────────────────────────

// registerBuiltins wires the devices and processors that ship with submixtap
// into reg.
func registerBuiltins(reg *config.Registry, metrics *observe.Metrics) {
	// ── Devices ───────────────────────────────────────────────────────────────

	reg.RegisterDevice(config.DeviceSynth, func(c config.DeviceConfig) (audio.Device, error) {
		return synth.New(synth.Config{
			SampleRate:  c.SampleRate,
			Channels:    c.Channels,
			BlockFrames: c.BlockFrames,
			Frequency:   c.Frequency,
		}), nil
	})

	reg.RegisterDevice(config.DeviceNetwork, func(c config.DeviceConfig) (audio.Device, error) {
		if c.SampleRate <= 0 {
			return nil, fmt.Errorf("network device: sample_rate must be positive, got %d", c.SampleRate)
		}
		return netdevice.New(c.SampleRate, netdevice.WithConnectionHook(func(delta int64) {
			metrics.DeviceConnections.Add(context.Background(), delta)
		})), nil
	})

	// ── Processors ────────────────────────────────────────────────────────────

	reg.RegisterProcessor(config.ProcessorPassthrough, func(config.ProcessorConfig, audio.Format) (reverse.Processor, error) {
		return reverse.Passthrough{}, nil
	})

	reg.RegisterProcessor(config.ProcessorReferenceRing, func(c config.ProcessorConfig, target audio.Format) (reverse.Processor, error) {
		history := time.Duration(c.HistorySeconds * float64(time.Second))
		return reverse.NewReferenceRing(history, target.SampleRate, target.Channels), nil
	})
}

// buildComponents instantiates the configured device and processor. An
// unregistered device name is logged and leaves the tap without a device.
func buildComponents(cfg *config.Config, reg *config.Registry) (app.Components, error) {
	var comps app.Components

	dev, err := reg.CreateDevice(cfg.Device)
	switch {
	case errors.Is(err, config.ErrFactoryNotRegistered):
		slog.Warn("device not available, tap will not start", "name", cfg.Device.Name)
	case err != nil:
		return comps, fmt.Errorf("create device %q: %w", cfg.Device.Name, err)
	default:
		comps.Device = dev
		slog.Info("device created", "name", cfg.Device.Name, "sample_rate", dev.SampleRate())
	}

	target := audio.Format{SampleRate: cfg.Tap.SampleRate, Channels: cfg.Tap.Channels}
	proc, err := reg.CreateProcessor(cfg.Processor, target)
	if err != nil {
		return comps, fmt.Errorf("create processor %q: %w", cfg.Processor.Name, err)
	}
	comps.Processor = proc
	slog.Info("processor created", "name", cfg.Processor.Name)

	return comps, nil
}

// applyConfigChange applies the hot-reloadable parts of d and warns about the
// rest.
func applyConfigChange(level *slog.LevelVar, d config.ConfigDiff) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "fields", d.RestartRequired)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        submixtap startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Device", fmt.Sprintf("%s @ %d Hz", cfg.Device.Name, cfg.Device.SampleRate))
	printRow("Processor", cfg.Processor.Name)
	printRow("Target", audio.Format{SampleRate: cfg.Tap.SampleRate, Channels: cfg.Tap.Channels}.String())
	if cfg.Tap.Resample {
		printRow("Resample", "enabled")
	} else {
		printRow("Resample", "(disabled)")
	}
	printRow("Autostart", fmt.Sprintf("%t", cfg.Tap.Autostart))
	printRow("Saved dir", cfg.Tap.SavedDir)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(key, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
