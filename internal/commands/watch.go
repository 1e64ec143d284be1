package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/okra-platform/breakiter/internal/runtime"
	"github.com/okra-platform/breakiter/internal/watch"
	"github.com/okra-platform/breakiter/internal/wordbreak"
	"github.com/rs/zerolog"
)

// WatchDependencies for the watch command
type WatchDependencies struct {
	ConfigLoader   ConfigLoader
	EngineFactory  EngineFactory
	SignalNotifier SignalNotifier
	Output         Output
	Logger         zerolog.Logger
}

// WatchCommand re-segments files under a directory whenever they change
type WatchCommand struct {
	deps WatchDependencies
}

// NewWatchCommand creates a new watch command with default dependencies
func NewWatchCommand(flags *Flags) *WatchCommand {
	logger := defaultLogger()
	return &WatchCommand{
		deps: WatchDependencies{
			ConfigLoader:   &defaultConfigLoader{path: flags.ConfigPath},
			EngineFactory:  &defaultEngineFactory{logger: logger},
			SignalNotifier: defaultSignalNotifier{},
			Output:         writerOutput{w: os.Stdout},
			Logger:         logger,
		},
	}
}

// WithDependencies allows injecting custom dependencies for testing
func (wc *WatchCommand) WithDependencies(deps WatchDependencies) *WatchCommand {
	wc.deps = deps
	return wc
}

// Execute watches dir until ctx is done or an interrupt arrives
func (wc *WatchCommand) Execute(ctx context.Context, dir string) error {
	cfg, projectRoot, err := wc.deps.ConfigLoader.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dir == "" {
		dir = projectRoot
	}
	if dir == "" {
		dir = "."
	}

	enc, err := cfg.ParsedEncoding()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle interrupt signals
	sigChan := make(chan os.Signal, 1)
	wc.deps.SignalNotifier.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer wc.deps.SignalNotifier.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			wc.deps.Logger.Info().Msg("shutting down watcher")
			cancel()
		case <-ctx.Done():
		}
	}()

	e, err := wc.deps.EngineFactory.NewEngine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() {
		if err := e.Close(context.Background()); err != nil {
			wc.deps.Logger.Warn().Err(err).Msg("failed to close engine")
		}
	}()

	actor := runtime.NewSegmentActor(
		wordbreak.NewSegmenter(e, wc.deps.Logger),
		runtime.WithEncoding(enc),
		runtime.WithActorLogger(wc.deps.Logger),
	)
	rt := runtime.NewSegmentRuntime(actor, time.Duration(cfg.AskTimeout), wc.deps.Logger)
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := rt.Shutdown(shutdownCtx); err != nil {
			wc.deps.Logger.Warn().Err(err).Msg("failed to shut down runtime")
		}
	}()

	onChange := func(path string, op fsnotify.Op) {
		if !op.Has(fsnotify.Write) && !op.Has(fsnotify.Create) {
			return
		}
		wc.segmentFile(ctx, rt, path)
	}

	watcher, err := watch.NewFileWatcher(cfg.Watch.Patterns, cfg.Watch.Exclude, onChange, wc.deps.Logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.AddDirectory(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	wc.deps.Logger.Info().Str("dir", dir).Strs("patterns", cfg.Watch.Patterns).Msg("watching for changes")

	if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watcher error: %w", err)
	}
	return nil
}

func (wc *WatchCommand) segmentFile(ctx context.Context, rt runtime.Runtime, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		wc.deps.Logger.Warn().Err(err).Str("path", path).Msg("failed to read changed file")
		return
	}

	boundaries, err := rt.Segment(ctx, data)
	if err != nil {
		wc.deps.Logger.Error().Err(err).Str("path", path).Msg("failed to segment changed file")
		return
	}

	segments := max(len(boundaries)-1, 0)
	wc.deps.Output.Printf("%s: %d segments (%s)\n", filepath.Base(path), segments, humanize.Bytes(uint64(len(data))))
}
