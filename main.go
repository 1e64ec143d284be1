package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/okra-platform/breakiter/internal/commands"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	ctrl := &commands.Controller{
		Flags: &commands.Flags{},
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:    "breakiter",
		Usage:   "Word boundary iteration over UTF-8, UTF-16 and Latin-1 text",
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error, fatal, panic)",
				Sources: cli.EnvVars("BREAKITER_LOG_LEVEL"),
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to breakiter.json (default: search from the working directory up)",
				Sources: cli.EnvVars("BREAKITER_CONFIG"),
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("failed to parse log level: %w", err)
			}

			log.Logger = log.Level(level)
			ctrl.Flags.LogLevel = level.String()
			ctrl.Flags.ConfigPath = c.String("config")

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "segment",
				Usage:     "Print the word boundaries of a file, or stdin when the file is -",
				ArgsUsage: "<file|->",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "encoding",
						Usage: "input encoding (utf8, utf16, latin1)",
					},
					&cli.StringFlag{
						Name:  "engine",
						Usage: "segmentation engine (native, wasm)",
					},
					&cli.StringFlag{
						Name:  "wasm",
						Usage: "path to a guest module; implies --engine wasm",
					},
					&cli.BoolFlag{
						Name:  "words",
						Usage: "print segments instead of offsets",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Segment(ctx, commands.SegmentOptions{
						Input:    c.Args().First(),
						Encoding: c.String("encoding"),
						Engine:   c.String("engine"),
						WASM:     c.String("wasm"),
						Words:    c.Bool("words"),
					})
				},
			},
			{
				Name:      "watch",
				Usage:     "Re-segment files under a directory whenever they change",
				ArgsUsage: "[dir]",
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Watch(ctx, c.Args().First())
				},
			},
		},
	}

	ctx := context.Background()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("failed to run breakiter")
	}
}
