// Package commands contains the CLI commands for the application
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/okra-platform/breakiter/internal/config"
	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/okra-platform/breakiter/internal/segmenter"
	"github.com/okra-platform/breakiter/internal/wasm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

type Flags struct {
	LogLevel   string
	ConfigPath string
}

type Controller struct {
	Flags *Flags
}

func (c *Controller) Segment(ctx context.Context, opts SegmentOptions) error {
	return NewSegmentCommand(c.Flags).Execute(ctx, opts)
}

func (c *Controller) Watch(ctx context.Context, dir string) error {
	return NewWatchCommand(c.Flags).Execute(ctx, dir)
}

// Interfaces for dependency injection
type ConfigLoader interface {
	LoadConfig() (*config.Config, string, error)
}

type EngineFactory interface {
	NewEngine(ctx context.Context, cfg *config.Config) (engine.Engine, error)
}

type SignalNotifier interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type Output interface {
	Printf(format string, args ...any)
	Println(args ...any)
}

// Default implementations
type defaultConfigLoader struct {
	path string
}

// LoadConfig uses the explicit path when set. Without one, a missing
// breakiter.json falls back to the defaults.
func (l *defaultConfigLoader) LoadConfig() (*config.Config, string, error) {
	if l.path != "" {
		cfg, err := config.LoadConfigFromPath(l.path)
		if err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}

	cfg, root, err := config.LoadConfig()
	if errors.Is(err, config.ErrNotFound) {
		return config.Default(), "", nil
	}
	return cfg, root, err
}

type defaultEngineFactory struct {
	logger zerolog.Logger
}

func (f *defaultEngineFactory) NewEngine(ctx context.Context, cfg *config.Config) (engine.Engine, error) {
	var (
		e   engine.Engine
		err error
	)

	switch cfg.Engine {
	case config.EngineWASM:
		e, err = newWASMEngine(ctx, cfg, f.logger)
	default:
		e = segmenter.New(segmenter.WithLogger(f.logger))
	}
	if err != nil {
		return nil, err
	}

	return engine.Instrument(e,
		engine.WithMeter(otel.GetMeterProvider().Meter("github.com/okra-platform/breakiter")),
		engine.WithTracer(otel.GetTracerProvider().Tracer("github.com/okra-platform/breakiter")),
		engine.WithLogger(f.logger),
		engine.WithEngineName(cfg.Engine),
	)
}

func newWASMEngine(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (engine.Engine, error) {
	wasmBytes, err := os.ReadFile(cfg.WASM.Module)
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm module: %w", err)
	}

	e, err := wasm.NewWASMEngine(ctx, wasmBytes,
		wasm.WithModuleName(cfg.WASM.ModuleName),
		wasm.WithExports(cfg.WASM.Exports),
		wasm.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load wasm engine: %w", err)
	}
	return e, nil
}

type defaultSignalNotifier struct{}

func (defaultSignalNotifier) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (defaultSignalNotifier) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// writerOutput prints to an io.Writer
type writerOutput struct {
	w io.Writer
}

func (o writerOutput) Printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

func (o writerOutput) Println(args ...any) {
	fmt.Fprintln(o.w, args...)
}

func defaultLogger() zerolog.Logger {
	return log.Logger.With().Str("component", "cli").Logger()
}
