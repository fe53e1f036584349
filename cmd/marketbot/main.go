package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/DevRickLin/feishu-market-bot/internal/conf"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}
	return fmt.Sprintf("%s (%s)", version, short)
}

// flags holds the global flag values and the loaded configuration
type flags struct {
	EnvFile  string
	LogLevel string
	LogFile  string
	Config   *conf.Config
}

func main() {
	if err := setupLogger("info", ""); err != nil {
		panic(err)
	}

	f := &flags{}

	app := &cli.Command{
		Name:    "marketbot",
		Usage:   "Feishu marketplace bot",
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "path to a .env file",
				Sources:     cli.EnvVars("MARKET_ENV_FILE"),
				Value:       ".env",
				Destination: &f.EnvFile,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("MARKET_LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (optional)",
				Sources:     cli.EnvVars("MARKET_LOG_FILE"),
				Destination: &f.LogFile,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := godotenv.Load(f.EnvFile); err != nil {
				log.Debug().Str("path", f.EnvFile).Msg("no .env file, using environment variables")
			}

			level := f.LogLevel
			if os.Getenv("DEBUG") == "true" && !c.IsSet("log-level") {
				level = "debug"
			}
			if err := setupLogger(level, f.LogFile); err != nil {
				return ctx, err
			}

			cfg, err := conf.LoadFromEnv()
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			f.Config = cfg
			return ctx, nil
		},
		Commands: []*cli.Command{
			newServeCmd(f),
			newSweepCmd(f),
			newPublishCmd(f),
			newNotifyCmd(f),
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(ctx context.Context, c *cli.Command) error {
					fmt.Println(build())
					return nil
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("marketbot failed")
		os.Exit(1)
	}
}

func setupLogger(level string, logFile string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stderr}, file)
	}

	log.Logger = log.Output(output).Level(parsedLevel)
	return nil
}
