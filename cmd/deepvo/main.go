// Package main provides the deepvo command: training, evaluation,
// prediction and weight conversion for the DeepVO visual odometry model.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const version = "v0.1.0-dev"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "deepvo",
		Usage:   "Train and run the DeepVO visual odometry model",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "set log level (trace, debug, info, warn, error, fatal, panic)",
				Action: func(_ *cli.Context, s string) error {
					return setDebugLevel(s)
				},
				Value:   "info",
				EnvVars: []string{"DEEPVO_LOGLEVEL"},
			},
			&cli.StringFlag{
				Name:    "device",
				Usage:   "compute device (" + deviceNames + ")",
				Value:   deviceCPU,
				EnvVars: []string{"DEEPVO_DEVICE"},
			},
		},
		Commands: []*cli.Command{
			trainCommand(),
			evaluateCommand(),
			predictCommand(),
			shapeCommand(),
			convertCommand(),
			{
				Name:  "version",
				Usage: "Show version",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintf(c.App.Writer, "deepvo %s\n", version)
					return err
				},
			},
		},
	}
}

func setDebugLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	log.Logger = log.Level(lvl)
	return nil
}
