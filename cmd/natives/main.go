package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
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
	ctrl := &Controller{}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:    "natives",
		Usage:   "Run scripts against native Go functions, classes, and iterators",
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error, fatal, panic)",
				Sources: cli.EnvVars("NATIVES_LOG_LEVEL"),
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file",
				Sources: cli.EnvVars("NATIVES_CONFIG"),
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "background executor workers (0 means one per CPU)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "limit for each script run",
			},
			&cli.StringFlag{
				Name:  "lib-dir",
				Usage: "directory for file:// libraries",
			},
			&cli.StringFlag{
				Name:    "bolt",
				Usage:   "BoltDB file for bolt:// libraries",
				Sources: cli.EnvVars("NATIVES_BOLT"),
			},
			&cli.StringFlag{
				Name:  "sink",
				Usage: "where emitted messages go (stdio, ws, mqtt, none)",
			},
			&cli.StringFlag{
				Name:  "sink-url",
				Usage: "WebSocket URL for the ws sink",
			},
			&cli.BoolFlag{
				Name:  "testing",
				Usage: "expose test-only script helpers",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("failed to parse log level: %w", err)
			}

			log.Logger = log.Level(level)
			ctrl.Logger = log.Logger

			return ctx, ctrl.Configure(c)
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Run scripts and print their results",
				ArgsUsage: "SCRIPT...",
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Run(ctx, c.Args().Slice())
				},
			},
			{
				Name:      "watch",
				Usage:     "Run a script again whenever it changes",
				ArgsUsage: "SCRIPT",
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Watch(ctx, c.Args().First())
				},
			},
			{
				Name:      "doc",
				Usage:     "Render extension module documentation",
				ArgsUsage: "[MODULE]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "md, html, or yaml",
						Value: "md",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Doc(os.Stdout, c.Args().First(), c.String("format"))
				},
			},
			{
				Name:  "lib",
				Usage: "Manage the bolt:// library store",
				Commands: []*cli.Command{
					{
						Name:      "put",
						Usage:     "Store a library from a file",
						ArgsUsage: "NAME FILE",
						Action: func(ctx context.Context, c *cli.Command) error {
							return ctrl.LibPut(ctx, c.Args().Get(0), c.Args().Get(1))
						},
					},
					{
						Name:      "get",
						Usage:     "Print a stored library",
						ArgsUsage: "NAME",
						Action: func(ctx context.Context, c *cli.Command) error {
							return ctrl.LibGet(ctx, os.Stdout, c.Args().First())
						},
					},
					{
						Name:  "list",
						Usage: "List stored libraries",
						Action: func(ctx context.Context, c *cli.Command) error {
							return ctrl.LibList(ctx, os.Stdout)
						},
					},
					{
						Name:      "rm",
						Usage:     "Remove a stored library",
						ArgsUsage: "NAME",
						Action: func(ctx context.Context, c *cli.Command) error {
							return ctrl.LibRemove(ctx, c.Args().First())
						},
					},
				},
			},
			{
				Name:      "serve",
				Usage:     "Serve module docs and broadcast emitted messages over WebSockets",
				ArgsUsage: "[SCRIPT...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.IsSet("addr") {
						ctrl.Config.Server.Addr = c.String("addr")
					}
					return ctrl.Serve(ctx, c.Args().Slice())
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		stop()
		log.Fatal().Err(err).Msg("failed to run natives")
	}
}
