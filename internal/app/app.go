// Package app wires all submixtap subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP control API and drives the audio device,
// and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via [Components] and functional
// options (WithWavWriter, WithMetrics, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/submixtap/internal/config"
	"github.com/MrWong99/submixtap/internal/observe"
	"github.com/MrWong99/submixtap/internal/tap"
	"github.com/MrWong99/submixtap/pkg/audio"
	"github.com/MrWong99/submixtap/pkg/audio/wavfile"
	"github.com/MrWong99/submixtap/pkg/reverse"
)

// serverShutdownTimeout bounds how long Run waits for in-flight requests once
// its context is cancelled.
const serverShutdownTimeout = 5 * time.Second

// maxRecentRecordings is the number of finished recording paths kept for
// GET /recordings.
const maxRecentRecordings = 32

// Components holds the audio device and processor. A nil Device means no
// device is available; the tap then never starts. A nil Processor defaults to
// [reverse.Passthrough]. Populated by main.go via the config registry.
type Components struct {
	Device    audio.Device
	Processor reverse.Processor
}

// Runner is implemented by devices that render on their own loop, such as
// the synth device.
type Runner interface {
	Run(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg   *config.Config
	comps Components

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics        *observe.Metrics
	metricsHandler http.Handler
	writer         tap.WavWriter
	tap            *tap.Tap
	sessions       *SessionManager
	handler        http.Handler
	server         *http.Server
	background     []func(context.Context) error

	recMu      sync.Mutex
	recordings []string

	addrMu sync.Mutex
	addr   net.Addr
	ready  chan struct{}

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithWavWriter injects a WAV writer instead of creating a [wavfile.Writer].
func WithWavWriter(w tap.WavWriter) Option {
	return func(a *App) { a.writer = w }
}

// WithMetrics injects the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler served on /metrics. Defaults to the
// Prometheus default gatherer.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithBackground adds a task that Run executes alongside the server, e.g. a
// config watcher. The task must return when its context is cancelled.
func WithBackground(fn func(ctx context.Context) error) Option {
	return func(a *App) { a.background = append(a.background, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. cfg must have had
// [config.ApplyDefaults] applied.
func New(cfg *config.Config, comps Components, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{
		cfg:   cfg,
		comps: comps,
		ready: make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = observe.MetricsHandler(nil)
	}
	if a.comps.Processor == nil {
		a.comps.Processor = reverse.Passthrough{}
	}

	target := audio.Format{SampleRate: cfg.Tap.SampleRate, Channels: cfg.Tap.Channels}

	// ── 1. WAV writer ────────────────────────────────────────────────────
	if a.writer == nil {
		a.writer = wavfile.New(cfg.Tap.SavedDir,
			wavfile.WithFallbackFormat(target),
			wavfile.WithResult(func(_ string, _ int, elapsed time.Duration, err error) {
				a.metrics.RecordWavWrite(context.Background(), elapsed, err)
			}),
		)
	}

	// ── 2. Tap ───────────────────────────────────────────────────────────
	a.tap = tap.New(
		audio.StaticProvider{Device: a.comps.Device},
		a.comps.Processor,
		a.writer,
		tap.WithTarget(target),
		tap.WithResampling(cfg.Tap.Resample),
		tap.WithMetrics(a.metrics),
	)
	a.tap.OnWriteFinished(a.rememberRecording)
	a.closers = append(a.closers, a.tap.Close)

	// ── 3. Sessions ──────────────────────────────────────────────────────
	a.sessions = NewSessionManager(a.tap, a.comps.Processor)

	// ── 4. Device and processor teardown ─────────────────────────────────
	if c, ok := a.comps.Device.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	if c, ok := a.comps.Processor.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	// ── 5. HTTP ──────────────────────────────────────────────────────────
	a.handler = observe.Middleware(a.metrics)(a.routes())
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("app initialised",
		"target", target,
		"resample", cfg.Tap.Resample,
		"device", cfg.Device.Name,
		"processor", cfg.Processor.Name,
		"saved_dir", cfg.Tap.SavedDir,
	)
	return a, nil
}

// Tap returns the application's tap.
func (a *App) Tap() *tap.Tap { return a.tap }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Handler returns the HTTP handler serving the control API.
func (a *App) Handler() http.Handler { return a.handler }

// Ready is closed once Run is listening.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Addr returns the address the server listens on, or nil before [App.Ready]
// is closed.
func (a *App) Addr() net.Addr {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	return a.addr
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the HTTP server, the device loop (when the device implements
// [Runner]) and all background tasks, and blocks until ctx is cancelled or
// one of them fails. With tap.autostart set the tap is started first.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	a.addrMu.Lock()
	a.addr = ln.Addr()
	a.addrMu.Unlock()

	if a.cfg.Tap.Autostart {
		a.tap.Start()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if r, ok := a.comps.Device.(Runner); ok {
		g.Go(func() error { return r.Run(gctx) })
	}
	for _, fn := range a.background {
		g.Go(func() error { return fn(gctx) })
	}

	slog.Info("app running", "addr", ln.Addr().String(), "autostart", a.cfg.Tap.Autostart)
	close(a.ready)

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order: the tap is stopped and
// pending WAV writes are flushed before the device and processor close. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Recordings ──────────────────────────────────────────────────────────────

func (a *App) rememberRecording(path string) {
	a.recMu.Lock()
	defer a.recMu.Unlock()
	a.recordings = append(a.recordings, path)
	if n := len(a.recordings); n > maxRecentRecordings {
		a.recordings = append(a.recordings[:0:0], a.recordings[n-maxRecentRecordings:]...)
	}
}

// Recordings returns the paths of recently finished recordings, oldest first.
func (a *App) Recordings() []string {
	a.recMu.Lock()
	defer a.recMu.Unlock()
	out := make([]string, len(a.recordings))
	copy(out, a.recordings)
	return out
}
