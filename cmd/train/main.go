// Command train manages the training dataset and produces model snapshots.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/monitoring"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("Failed to load .env", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "train",
		Usage: "import training samples, train the virality network and inspect runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   "./data",
				Usage:   "directory holding the training database",
				EnvVars: []string{"DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "json or text",
				EnvVars: []string{"LOG_FORMAT"},
			},
		},
		Before: func(c *cli.Context) error {
			logger := monitoring.NewLogger(monitoring.LogOptions{
				Level:  c.String("log-level"),
				Format: c.String("log-format"),
				Output: c.App.ErrWriter,
			})
			slog.SetDefault(logger.Logger)
			c.App.Metadata = map[string]any{"logger": logger}
			return nil
		},
		Commands: []*cli.Command{
			importCommand(),
			trainCommand(),
			evaluateCommand(),
			runsCommand(),
			statsCommand(),
			purgeCommand(),
			tokenCommand(),
		},
	}
}

func loggerFrom(c *cli.Context) *monitoring.Logger {
	if l, ok := c.App.Metadata["logger"].(*monitoring.Logger); ok {
		return l
	}
	return monitoring.NewLogger(monitoring.LogOptions{Output: c.App.ErrWriter})
}
