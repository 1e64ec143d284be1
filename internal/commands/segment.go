package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/okra-platform/breakiter/internal/config"
	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/okra-platform/breakiter/internal/wordbreak"
	"github.com/rs/zerolog"
)

// SegmentOptions contains options for the segment command
type SegmentOptions struct {
	// Input is a file path, or "-" for stdin
	Input string
	// Encoding overrides the configured encoding when set
	Encoding string
	// Engine overrides the configured engine when set
	Engine string
	// WASM overrides the configured guest module path when set
	WASM string
	// Words prints segments instead of offsets. UTF-8 only.
	Words bool
}

// SegmentDependencies for the segment command
type SegmentDependencies struct {
	ConfigLoader  ConfigLoader
	EngineFactory EngineFactory
	Stdin         io.Reader
	Output        Output
	Logger        zerolog.Logger
}

// SegmentCommand prints the word boundaries of one input
type SegmentCommand struct {
	deps SegmentDependencies
}

// NewSegmentCommand creates a new segment command with default dependencies
func NewSegmentCommand(flags *Flags) *SegmentCommand {
	logger := defaultLogger()
	return &SegmentCommand{
		deps: SegmentDependencies{
			ConfigLoader:  &defaultConfigLoader{path: flags.ConfigPath},
			EngineFactory: &defaultEngineFactory{logger: logger},
			Stdin:         os.Stdin,
			Output:        writerOutput{w: os.Stdout},
			Logger:        logger,
		},
	}
}

// WithDependencies allows injecting custom dependencies for testing
func (sc *SegmentCommand) WithDependencies(deps SegmentDependencies) *SegmentCommand {
	sc.deps = deps
	return sc
}

// Execute runs the segment command
func (sc *SegmentCommand) Execute(ctx context.Context, opts SegmentOptions) error {
	cfg, _, err := sc.deps.ConfigLoader.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyOverrides(cfg, opts); err != nil {
		return err
	}

	enc, err := cfg.ParsedEncoding()
	if err != nil {
		return err
	}
	if opts.Words && enc != engine.UTF8 {
		return fmt.Errorf("--words requires utf8 input, got %s", enc)
	}

	data, err := sc.readInput(opts.Input)
	if err != nil {
		return err
	}

	e, err := sc.deps.EngineFactory.NewEngine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() {
		if err := e.Close(ctx); err != nil {
			sc.deps.Logger.Warn().Err(err).Msg("failed to close engine")
		}
	}()

	segmenter := wordbreak.NewSegmenter(e, sc.deps.Logger)

	start := time.Now()
	boundaries, err := segmenter.Segment(ctx, enc, data)
	if err != nil {
		return fmt.Errorf("failed to segment %s: %w", opts.Input, err)
	}

	sc.deps.Logger.Info().
		Str("input", opts.Input).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Str("engine", cfg.Engine).
		Stringer("encoding", enc).
		Int("boundaries", len(boundaries)).
		Dur("took", time.Since(start)).
		Msg("segmented input")

	if opts.Words {
		for _, word := range wordbreak.Split(string(data), boundaries) {
			sc.deps.Output.Printf("%q\n", word)
		}
		return nil
	}

	sc.deps.Output.Println(formatBoundaries(boundaries))
	return nil
}

func (sc *SegmentCommand) readInput(input string) ([]byte, error) {
	if input == "" || input == "-" {
		data, err := io.ReadAll(sc.deps.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func applyOverrides(cfg *config.Config, opts SegmentOptions) error {
	if opts.Encoding != "" {
		cfg.Encoding = opts.Encoding
	}
	if opts.Engine != "" {
		cfg.Engine = opts.Engine
	}
	if opts.WASM != "" {
		cfg.WASM.Module = opts.WASM
		if opts.Engine == "" {
			cfg.Engine = config.EngineWASM
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

func formatBoundaries(boundaries []int32) string {
	parts := make([]string, len(boundaries))
	for i, b := range boundaries {
		parts[i] = fmt.Sprint(b)
	}
	return strings.Join(parts, " ")
}
